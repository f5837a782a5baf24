package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/internal/notifier"
	"github.com/leapstack-labs/testide/internal/selection"
	"github.com/leapstack-labs/testide/internal/status"
	"github.com/leapstack-labs/testide/pkg/core"
)

// Controller is the state machine of one run kind. At most one of its runs
// is active at a time; the latest run is kept until the next one starts.
type Controller struct {
	kind core.RunKind
	e    *Engine

	mu      sync.Mutex
	current *runState
	// completed is the latest run of this kind that reached PhaseCompleted.
	completed *core.Run
}

// failedOnlyLookback bounds how many persisted runs RunFailedOnly searches
// for a completed one.
const failedOnlyLookback = 50

// runState is a run together with the channels of its owner goroutine.
type runState struct {
	run *core.Run
	sel selection.Selection

	// gated holds the code each target passed the parse gate with. It is
	// written once by the owner goroutine before dispatch starts.
	gated map[string]gatedCode

	// updates carries unit results to the owner goroutine.
	updates chan update
	// stop is closed by Stop.
	stop chan struct{}
	// done is closed when the run reached a terminal phase.
	done chan struct{}
}

// gatedCode is the code a unit executes, or why it may not execute.
type gatedCode struct {
	code    string
	problem string
}

// update is a unit result tagged with the run it belongs to.
type update struct {
	runID  string
	result core.UnitResult
}

// Kind returns the run kind of the controller.
func (c *Controller) Kind() core.RunKind {
	return c.kind
}

// Start creates and launches a run over targets. Duplicate ids collapse.
//
// It fails with *core.OrphanVersionError when a target is not in the tree
// and with *core.RunAlreadyActiveError while a run of this kind has not
// finished. The returned run is a snapshot of the new run.
func (c *Controller) Start(targets []string) (*core.Run, error) {
	targets = dedupe(targets)
	if len(targets) == 0 {
		return nil, core.ErrNoTargets
	}
	sel, err := selection.Project(c.e.tree, targets)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && !c.current.run.Phase.IsTerminal() {
		return nil, &core.RunAlreadyActiveError{Kind: c.kind, RunID: c.current.run.ID}
	}

	rs := &runState{
		run:     newRun(c.e.newID(), c.kind, targets, c.e.now()),
		sel:     sel,
		updates: make(chan update, len(targets)),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.current = rs

	c.e.logger.Info("starting run", "kind", c.kind, "run_id", rs.run.ID, "targets", len(targets))
	c.publishLocked(rs, notifier.EventRunStarted, "")

	c.e.runs.Add(1)
	go func() {
		defer c.e.runs.Done()
		c.drive(c.e.ctx, rs)
	}()

	return rs.run.Clone(), nil
}

// Rerun starts a new run restricted to versionIDs. The previous run is not
// modified.
func (c *Controller) Rerun(versionIDs []string) (*core.Run, error) {
	return c.Start(versionIDs)
}

// RunFailedOnly starts a new run over the units that ended in Error in the
// latest completed run of this kind. Aborted runs carry no units and are
// skipped, so a gate failure does not hide the failures of the run before
// it. The completed run is taken from memory, or from the store after a
// restart. Failed versions deleted since are skipped.
//
// It returns core.ErrNoRun when this kind never ran and
// core.ErrNothingToRerun when no completed run has failed units.
func (c *Controller) RunFailedOnly(ctx context.Context) (*core.Run, error) {
	if snap := c.Snapshot(); snap != nil && !snap.Phase.IsTerminal() {
		return nil, &core.RunAlreadyActiveError{Kind: c.kind, RunID: snap.ID}
	}
	last, err := c.latestCompleted(ctx)
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, id := range last.VersionsWithStatus(core.StatusError) {
		if c.e.tree.HasVersion(id) {
			failed = append(failed, id)
		}
	}
	if len(failed) == 0 {
		return nil, core.ErrNothingToRerun
	}
	c.e.logger.Debug("rerunning failed units", "kind", c.kind, "previous_run", last.ID, "count", len(failed))
	return c.Start(failed)
}

func (c *Controller) latestCompleted(ctx context.Context) (*core.Run, error) {
	c.mu.Lock()
	completed, ran := c.completed, c.current != nil
	c.mu.Unlock()

	if completed != nil {
		return completed.Clone(), nil
	}
	if c.e.store == nil {
		if ran {
			return nil, core.ErrNothingToRerun
		}
		return nil, core.ErrNoRun
	}

	runs, err := c.e.store.ListRuns(ctx, c.kind, failedOnlyLookback)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent %s runs: %w", c.kind, err)
	}
	for _, run := range runs {
		if run.Phase == core.PhaseCompleted {
			return run, nil
		}
	}
	if len(runs) == 0 && !ran {
		return nil, core.ErrNoRun
	}
	return nil, core.ErrNothingToRerun
}

// Stop asks the active run to stop. It is advisory: units already
// executing finish or report Stopped on their own, and units not yet
// dispatched are reported Stopped. With a stop grace period configured,
// units still running after it are finalized as Stopped.
//
// Stopping a finished run, or a run that is already stopping, is a no-op.
// ErrNoRun is returned when this kind never ran.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	rs := c.current
	if rs == nil {
		c.mu.Unlock()
		return core.ErrNoRun
	}
	if !requestStop(rs.run) {
		c.mu.Unlock()
		return nil
	}
	close(rs.stop)
	runID := rs.run.ID
	c.e.logger.Info("stopping run", "kind", c.kind, "run_id", runID)
	c.publishLocked(rs, notifier.EventStopping, "")
	c.mu.Unlock()

	if stopper, ok := c.e.executor.(backend.Stopper); ok {
		if err := stopper.StopRun(ctx, runID); err != nil {
			// The local stop already took effect.
			c.e.logger.Warn("backend did not acknowledge stop", "run_id", runID, "error", err)
		}
	}
	return nil
}

// Report delivers a unit result from an external executor.
//
// Results for a run that is not the current run of this kind are dropped,
// as are results arriving before units exist or after completion. Only an
// invalid status is an error.
func (c *Controller) Report(runID string, res core.UnitResult) error {
	if !res.Status.Valid() {
		return fmt.Errorf("invalid unit status %q", res.Status)
	}

	c.mu.Lock()
	rs := c.current
	accept := rs != nil && rs.run.ID == runID && rs.run.Units != nil && !rs.run.Completed
	c.mu.Unlock()

	if !accept {
		c.e.logger.Debug("dropping stale unit result", "kind", c.kind, "run_id", runID, "version_id", res.VersionID)
		return nil
	}
	c.send(rs, update{runID: runID, result: res})
	return nil
}

// Snapshot returns a copy of the latest run, or nil if none started.
func (c *Controller) Snapshot() *core.Run {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}
	return c.current.run.Clone()
}

// Rollup returns the aggregated view of the latest run. The second result
// is false if none started.
func (c *Controller) Rollup() (status.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return status.Report{}, false
	}
	return c.rollupLocked(c.current), true
}

// Wait blocks until the run that is latest at call time is finished and
// returns its final snapshot.
func (c *Controller) Wait(ctx context.Context) (*core.Run, error) {
	c.mu.Lock()
	rs := c.current
	c.mu.Unlock()

	if rs == nil {
		return nil, core.ErrNoRun
	}
	select {
	case <-rs.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return rs.run.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// rollupLocked aggregates rs. Aggregation errors are defects and panic.
func (c *Controller) rollupLocked(rs *runState) status.Report {
	rep, err := status.Rollup(c.e.tree, rs.run, rs.sel)
	if err != nil {
		panic(fmt.Sprintf("engine: run %s: %v", rs.run.ID, err))
	}
	return rep
}

// publishLocked emits a snapshot of rs. Publishing under the lock keeps
// events in the order of the state changes they describe.
func (c *Controller) publishLocked(rs *runState, typ notifier.EventType, versionID string) {
	rep := c.rollupLocked(rs)
	c.e.notifier.Publish(notifier.Event{
		Type:      typ,
		Kind:      c.kind,
		RunID:     rs.run.ID,
		VersionID: versionID,
		Run:       rs.run.Clone(),
		Report:    &rep,
	})
}

// send hands u to the owner goroutine of rs, or drops it once the run is
// done.
func (c *Controller) send(rs *runState, u update) {
	select {
	case rs.updates <- u:
	case <-rs.done:
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
