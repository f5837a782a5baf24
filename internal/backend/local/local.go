// Package local implements an in-process backend that treats version code
// as Starlark test scripts.
//
// Parsing is static (syntax plus name resolution) and never runs code.
// Execution runs the script in a fresh sandboxed thread with a small set of
// assertion builtins:
//
//	assert_eq(got, want, msg="")
//	assert_true(cond, msg="")
//	fail(msg)
//	log(*args)
//
// KIND is predeclared to the run kind ("dry_run" or "build_run").
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/pkg/core"
)

// maxStoppedRuns bounds how many stopped run ids are remembered.
const maxStoppedRuns = 128

// Backend is the local Starlark backend.
type Backend struct {
	maxSteps uint64
	logger   *slog.Logger
	opts     *syntax.FileOptions

	mu      sync.Mutex
	stopped map[string]bool
	// stopOrder lists stopped run ids, oldest first.
	stopOrder []string
	threads   map[string]map[*starlark.Thread]struct{}
}

// Config holds local backend configuration.
type Config struct {
	// MaxSteps bounds the computation steps of one execution (0 = unbounded).
	MaxSteps uint64
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates a local backend.
func New(cfg Config) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{
		maxSteps: cfg.MaxSteps,
		logger:   logger,
		opts: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
		stopped: make(map[string]bool),
		threads: make(map[string]map[*starlark.Thread]struct{}),
	}
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Stopper = (*Backend)(nil)

// Parse checks every source without executing it. Only failures are
// returned.
func (b *Backend) Parse(ctx context.Context, batch []backend.Source) ([]backend.ParseFailure, error) {
	var failures []backend.ParseFailure
	for _, src := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if problem := b.check(src); problem != nil {
			failures = append(failures, backend.ParseFailure{VersionID: src.VersionID, Problem: *problem})
		}
	}
	b.logger.Debug("parsed batch", "versions", len(batch), "failed", len(failures))
	return failures, nil
}

func (b *Backend) check(src backend.Source) *core.ParseProblem {
	f, err := b.opts.Parse(src.VersionID, src.Code, 0)
	if err != nil {
		return problemFromError(err)
	}
	isPredeclared := func(name string) bool {
		_, ok := predeclaredNames[name]
		return ok
	}
	if err := resolve.File(f, isPredeclared, starlark.Universe.Has); err != nil {
		return problemFromError(err)
	}
	return nil
}

// problemFromError extracts a location range from syntax and resolve
// errors. Both report a single position; the range covers one column.
func problemFromError(err error) *core.ParseProblem {
	var (
		syntaxErr syntax.Error
		resolved  resolve.ErrorList
	)
	switch {
	case errors.As(err, &syntaxErr):
		return rangeAt(syntaxErr.Pos, syntaxErr.Msg)
	case errors.As(err, &resolved) && len(resolved) > 0:
		return rangeAt(resolved[0].Pos, resolved[0].Msg)
	default:
		return &core.ParseProblem{Message: err.Error()}
	}
}

func rangeAt(pos syntax.Position, msg string) *core.ParseProblem {
	from := core.Position{Line: int(pos.Line), Column: int(pos.Col)}
	to := from
	to.Column++
	return &core.ParseProblem{Message: msg, From: from, To: to}
}

// Execute runs one version. Assertion and runtime failures produce an
// Error unit; ctx cancellation is a service error; a stop request produces
// a Stopped unit.
func (b *Backend) Execute(ctx context.Context, job backend.Job) (core.UnitResult, error) {
	var out strings.Builder
	thread := &starlark.Thread{
		Name: job.VersionID,
		Print: func(_ *starlark.Thread, msg string) {
			out.WriteString(msg)
			out.WriteByte('\n')
		},
	}
	if b.maxSteps > 0 {
		thread.SetMaxExecutionSteps(b.maxSteps)
	}

	if b.track(job.RunID, thread) {
		return core.UnitResult{VersionID: job.VersionID, Status: core.StatusStopped}, nil
	}
	defer b.untrack(job.RunID, thread)

	done := make(chan struct{})
	defer close(done)
	var cancelled error
	var cancelMu sync.Mutex
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			cancelMu.Lock()
			cancelled = ctx.Err()
			cancelMu.Unlock()
			thread.Cancel("context done")
		case <-job.Stop:
			thread.Cancel("run stopped")
		}
	}()

	start := time.Now()
	_, err := starlark.ExecFileOptions(b.opts, thread, job.VersionID, job.Code, predeclared(job.Kind, &out))
	result := core.UnitResult{
		VersionID:   job.VersionID,
		Status:      core.StatusSuccess,
		TimeTakenMS: core.Millis(time.Since(start)),
		Output:      out.String(),
	}
	if err == nil {
		return result, nil
	}

	cancelMu.Lock()
	ctxErr := cancelled
	cancelMu.Unlock()
	switch {
	case ctxErr != nil:
		return core.UnitResult{}, ctxErr
	case b.isStopped(job.RunID) || isClosed(job.Stop):
		result.Status = core.StatusStopped
	default:
		result.Status = core.StatusError
		result.Error = failureMessage(err)
	}
	return result, nil
}

// StopRun cancels every execution of runID that is still running and makes
// later executions of that run report Stopped without starting. Only the
// most recent stopped runs are remembered.
func (b *Backend) StopRun(_ context.Context, runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.stopped[runID] {
		b.stopped[runID] = true
		b.stopOrder = append(b.stopOrder, runID)
		if len(b.stopOrder) > maxStoppedRuns {
			delete(b.stopped, b.stopOrder[0])
			b.stopOrder = b.stopOrder[1:]
		}
	}
	for thread := range b.threads[runID] {
		thread.Cancel("run stopped")
	}
	b.logger.Debug("stopped run", "run_id", runID, "threads", len(b.threads[runID]))
	return nil
}

// track registers a thread under its run. It reports true if the run was
// already stopped.
func (b *Backend) track(runID string, thread *starlark.Thread) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped[runID] {
		return true
	}
	if b.threads[runID] == nil {
		b.threads[runID] = make(map[*starlark.Thread]struct{})
	}
	b.threads[runID][thread] = struct{}{}
	return false
}

func (b *Backend) untrack(runID string, thread *starlark.Thread) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.threads[runID], thread)
	if len(b.threads[runID]) == 0 {
		delete(b.threads, runID)
	}
}

func (b *Backend) isStopped(runID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped[runID]
}

func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func failureMessage(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return fmt.Sprintf("%s\n%s", evalErr.Msg, evalErr.CallStack.String())
	}
	return err.Error()
}
