// Package workspace loads a test workspace from disk into a version tree and
// keeps the tree in sync with code edits, signalling saves in progress to the
// run engine.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/leapstack-labs/testide/internal/saves"
	"github.com/leapstack-labs/testide/internal/tree"
	"github.com/leapstack-labs/testide/pkg/core"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to a
// code file to settle.
const DefaultDebounce = 100 * time.Millisecond

// Workspace is a loaded workspace.
type Workspace struct {
	root     string
	tree     *tree.Tree
	saves    *saves.Tracker
	logger   *slog.Logger
	debounce time.Duration

	mu     sync.Mutex
	paths  map[string]string // version id -> absolute code path
	byPath map[string]string // absolute code path -> version id
}

// Config holds workspace configuration.
type Config struct {
	// Dir is the workspace root holding the manifest (required)
	Dir string
	// Saves receives save signals (optional, a private tracker if nil)
	Saves *saves.Tracker
	// Debounce overrides DefaultDebounce for the watcher
	Debounce time.Duration
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Load reads the manifest in cfg.Dir together with every version's code and
// builds the tree.
func Load(cfg Config) (*Workspace, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("workspace directory is required")
	}
	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracker := cfg.Saves
	if tracker == nil {
		tracker = saves.NewTracker()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	m, err := ReadManifest(root)
	if err != nil {
		return nil, err
	}

	w := &Workspace{
		root:     root,
		tree:     tree.New(),
		saves:    tracker,
		logger:   logger,
		debounce: debounce,
		paths:    make(map[string]string),
		byPath:   make(map[string]string),
	}
	if err := w.build(m); err != nil {
		return nil, err
	}

	logger.Info("workspace loaded", "root", root, "files", len(m.Files), "versions", w.tree.Len())
	return w, nil
}

func (w *Workspace) build(m *Manifest) error {
	for _, f := range m.Files {
		if err := w.tree.AddFile(f.ID, orDefault(f.Name, f.ID)); err != nil {
			return err
		}
		for _, t := range f.Tests {
			if err := w.tree.AddTest(f.ID, t.ID, orDefault(t.Name, t.ID)); err != nil {
				return err
			}
			for _, v := range t.Versions {
				path := filepath.Join(w.root, filepath.FromSlash(v.Path))
				code, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("version %s: %w", v.ID, err)
				}
				if err := w.tree.AddVersion(t.ID, v.ID, orDefault(v.Name, v.ID), string(code)); err != nil {
					return err
				}
				if other, dup := w.byPath[path]; dup {
					return fmt.Errorf("versions %s and %s share the code file %s", other, v.ID, v.Path)
				}
				w.paths[v.ID] = path
				w.byPath[path] = v.ID
			}
			if t.Current != "" {
				if err := w.tree.SetCurrent(t.Current); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// Tree returns the version tree.
func (w *Workspace) Tree() *tree.Tree {
	return w.tree
}

// Saves returns the save tracker.
func (w *Workspace) Saves() *saves.Tracker {
	return w.saves
}

// CurrentVersionIDs returns the current version of every test, the default
// selection of a run.
func (w *Workspace) CurrentVersionIDs() []string {
	return w.tree.CurrentVersionIDs()
}

// CodePath returns the absolute code file of a version.
func (w *Workspace) CodePath(versionID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.paths[versionID]
	return p, ok
}

// Save writes new code for a version and updates the tree. Runs that target
// the version wait until the save finished; a failed save fails them.
func (w *Workspace) Save(ctx context.Context, versionID, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, ok := w.CodePath(versionID)
	if !ok {
		return &core.OrphanVersionError{VersionID: versionID}
	}

	return w.saves.Track(versionID, func() error {
		if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
		}
		if w.tree.UpdateCode(versionID, code) {
			w.logger.Debug("version code saved", "version_id", versionID)
		}
		return nil
	})
}

// reload reads a version's code file into the tree.
func (w *Workspace) reload(versionID string) error {
	path, ok := w.CodePath(versionID)
	if !ok {
		return &core.OrphanVersionError{VersionID: versionID}
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if w.tree.UpdateCode(versionID, string(code)) {
		w.logger.Info("version changed on disk", "version_id", versionID)
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
