// Package engine orchestrates Parse, Dry and Build runs over the workspace
// tree: it waits for saves, gates on parse verdicts, dispatches units to
// the execution backend and publishes aggregated progress.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/internal/notifier"
	"github.com/leapstack-labs/testide/internal/parsegate"
	"github.com/leapstack-labs/testide/internal/saves"
	"github.com/leapstack-labs/testide/internal/tree"
	"github.com/leapstack-labs/testide/pkg/core"
)

// Engine owns one Controller per run kind and the collaborators they share.
type Engine struct {
	tree     *tree.Tree
	gate     *parsegate.Gate
	executor backend.Executor
	saves    *saves.Tracker
	notifier *notifier.Notifier
	store    core.Store
	logger   *slog.Logger

	concurrency int
	unitTimeout time.Duration
	stopGrace   time.Duration
	newID       func() string
	now         func() time.Time

	// ctx is the parent of every run; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup

	controllers map[core.RunKind]*Controller
}

// Config holds engine configuration.
type Config struct {
	// Tree is the workspace tree (required)
	Tree *tree.Tree
	// Parser validates version code (required)
	Parser backend.Parser
	// Executor runs versions for dry and build runs (required)
	Executor backend.Executor
	// Saves tracks in-flight code saves (optional, a private tracker if nil)
	Saves *saves.Tracker
	// Notifier receives run events (optional, a private notifier if nil)
	Notifier *notifier.Notifier
	// Store persists finished runs (optional)
	Store core.Store

	// Concurrency bounds units executing at once (default 1, sequential)
	Concurrency int
	// UnitTimeout bounds a single execution (0 = none)
	UnitTimeout time.Duration
	// StopGrace is how long units may keep running after Stop before they
	// are finalized as Stopped (0 = wait for the executor)
	StopGrace time.Duration

	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// NewID generates run ids (optional, defaults to random UUIDs)
	NewID func() string
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Tree == nil {
		return nil, fmt.Errorf("engine: tree is required")
	}
	if cfg.Parser == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("engine: parser and executor are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracker := cfg.Saves
	if tracker == nil {
		tracker = saves.NewTracker()
	}
	n := cfg.Notifier
	if n == nil {
		n = notifier.New(16)
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		tree: cfg.Tree,
		gate: parsegate.New(parsegate.Config{
			Tree:   cfg.Tree,
			Parser: cfg.Parser,
			Logger: logger.With("component", "parsegate"),
		}),
		executor:    cfg.Executor,
		saves:       tracker,
		notifier:    n,
		store:       cfg.Store,
		logger:      logger,
		concurrency: concurrency,
		unitTimeout: cfg.UnitTimeout,
		stopGrace:   cfg.StopGrace,
		newID:       newID,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		controllers: make(map[core.RunKind]*Controller, len(core.RunKinds)),
	}
	for _, kind := range core.RunKinds {
		e.controllers[kind] = &Controller{kind: kind, e: e}
	}

	cfg.Tree.OnInvalidate(func(versionID string) {
		n.Publish(notifier.Event{Type: notifier.EventInvalidated, VersionID: versionID})
	})

	logger.Debug("engine initialized", "concurrency", concurrency,
		"unit_timeout", cfg.UnitTimeout, "stop_grace", cfg.StopGrace, "store", cfg.Store != nil)
	return e, nil
}

// Controller returns the controller of a run kind. An unknown kind is a
// programming error and panics.
func (e *Engine) Controller(kind core.RunKind) *Controller {
	c, ok := e.controllers[kind]
	if !ok {
		panic(fmt.Sprintf("engine: unknown run kind %q", kind))
	}
	return c
}

// Tree returns the workspace tree.
func (e *Engine) Tree() *tree.Tree {
	return e.tree
}

// Saves returns the save tracker.
func (e *Engine) Saves() *saves.Tracker {
	return e.saves
}

// Notifier returns the event notifier.
func (e *Engine) Notifier() *notifier.Notifier {
	return e.notifier
}

// Store returns the run history store, or nil.
func (e *Engine) Store() core.Store {
	return e.store
}

// Close cancels every active run and waits for them to finish. Units still
// in flight end as Stopped.
func (e *Engine) Close() {
	e.cancel()
	e.runs.Wait()
}
