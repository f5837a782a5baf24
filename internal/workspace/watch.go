package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch follows edits to version code files until ctx is cancelled. A write
// marks the version as saving right away; once writes have been quiet for
// the debounce interval the new code is loaded into the tree and the save
// completes.
func (w *Workspace) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace files on save, so watch directories.
	for _, dir := range w.codeDirs() {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	d := &debouncer{w: w, timers: make(map[string]*time.Timer)}
	defer d.stop()

	w.logger.Debug("watching workspace", "root", w.root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			id, known := w.byPath[filepath.Clean(event.Name)]
			w.mu.Unlock()
			if known {
				d.touch(id)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Workspace) codeDirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]bool)
	var dirs []string
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs
}

// debouncer keeps one pending reload per version. Each pending reload holds
// one save on the tracker.
type debouncer struct {
	w *Workspace

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func (d *debouncer) touch(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[id]; ok && t.Stop() {
		t.Reset(d.w.debounce)
		return
	}

	d.w.saves.Begin(id)
	var t *time.Timer
	t = time.AfterFunc(d.w.debounce, func() {
		d.mu.Lock()
		if d.timers[id] == t {
			delete(d.timers, id)
		}
		d.mu.Unlock()

		err := d.w.reload(id)
		if err != nil {
			d.w.logger.Warn("failed to reload version", "version_id", id, "error", err)
		}
		d.w.saves.Done(id, err)
	})
	d.timers[id] = t
}

// stop cancels pending reloads and releases their saves.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, t := range d.timers {
		if t.Stop() {
			d.w.saves.Done(id, nil)
		}
		delete(d.timers, id)
	}
}
