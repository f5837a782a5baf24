package engine

// drive.go - lifecycle of a single run: gate, execute, complete.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/internal/notifier"
	"github.com/leapstack-labs/testide/pkg/core"
)

// drive is the owner goroutine of rs. Only it applies unit updates.
func (c *Controller) drive(ctx context.Context, rs *runState) {
	defer close(rs.done)

	// Phase 1: wait for saves and parse verdicts. Nothing executes on failure.
	if msg, ok := c.gateRun(ctx, rs); !ok {
		c.abortRun(rs, msg)
		return
	}

	rs.gated = c.snapshotGated(rs.run.Targets)

	c.mu.Lock()
	beginUnits(rs.run)
	c.publishLocked(rs, notifier.EventPhase, "")
	c.mu.Unlock()

	// Phase 2: execute units.
	if c.kind.Executes() {
		go c.dispatch(ctx, rs)
		c.collect(ctx, rs)
	} else {
		c.settleParsed(rs)
	}

	c.completeRun(rs)
}

// gateRun returns the abort message when the run may not execute.
func (c *Controller) gateRun(ctx context.Context, rs *runState) (string, bool) {
	targets := rs.run.Targets

	if err := c.e.saves.Wait(ctx, targets); err != nil {
		return err.Error(), false
	}

	c.setPhase(rs, core.PhaseParsing)
	failed, err := c.e.gate.EnsureParsed(ctx, rs.run.ID, targets)
	if err != nil {
		return err.Error(), false
	}
	if len(failed) > 0 {
		return c.parseFailureMessage(failed), false
	}
	return "", true
}

// snapshotGated captures the code every target passed the gate with. Edits
// landing after this point do not reach the executor; a target edited
// between the gate and the snapshot carries no ok verdict and fails.
func (c *Controller) snapshotGated(targets []string) map[string]gatedCode {
	gated := make(map[string]gatedCode, len(targets))
	for _, id := range targets {
		v, ok := c.e.tree.Version(id)
		switch {
		case !ok:
			gated[id] = gatedCode{problem: "version was deleted before it ran"}
		case v.LastParseVerdict == nil || !v.LastParseVerdict.OK():
			gated[id] = gatedCode{problem: "modified after parsing"}
		default:
			gated[id] = gatedCode{code: v.Code}
		}
	}
	return gated
}

func (c *Controller) parseFailureMessage(failed []string) string {
	parts := make([]string, 0, len(failed))
	for _, id := range failed {
		v, ok := c.e.tree.Version(id)
		switch {
		case !ok:
			parts = append(parts, id+" (deleted)")
		case v.LastParseVerdict == nil:
			parts = append(parts, v.Name+" (modified while parsing)")
		default:
			p := v.LastParseVerdict.Problem
			parts = append(parts, fmt.Sprintf("%s (%s %s)", v.Name, p.From, p.Message))
		}
	}
	return fmt.Sprintf("%d version(s) failed to parse: %s", len(failed), strings.Join(parts, "; "))
}

// settleParsed finishes the units of a parse run. Every target already
// holds an ok verdict at this point.
func (c *Controller) settleParsed(rs *runState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rs.run.Stopping {
		stopPending(rs.run, "")
	} else {
		for _, id := range rs.run.Targets {
			applyResult(rs.run, core.UnitResult{VersionID: id, Status: core.StatusSuccess})
		}
	}
	c.publishLocked(rs, notifier.EventUnitUpdated, "")
}

// dispatch issues execution requests in target order, at most
// concurrency at a time.
func (c *Controller) dispatch(ctx context.Context, rs *runState) {
	var g errgroup.Group
	g.SetLimit(c.e.concurrency)

	for _, id := range rs.run.Targets {
		g.Go(func() error {
			c.execute(ctx, rs, id)
			return nil
		})
	}
	_ = g.Wait()
}

// execute runs one unit and sends its updates to the owner goroutine.
func (c *Controller) execute(ctx context.Context, rs *runState, versionID string) {
	runID := rs.run.ID
	result := func(res core.UnitResult) {
		res.VersionID = versionID
		c.send(rs, update{runID: runID, result: res})
	}

	// Units not dispatched before a stop never start.
	if isClosed(rs.stop) || ctx.Err() != nil {
		result(core.UnitResult{Status: core.StatusStopped})
		return
	}

	gated := rs.gated[versionID]
	if gated.problem != "" {
		result(core.UnitResult{Status: core.StatusError, Error: gated.problem})
		return
	}
	result(core.UnitResult{Status: core.StatusRunning})

	execCtx := ctx
	if c.e.unitTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, c.e.unitTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.e.executor.Execute(execCtx, backend.Job{
		RunID:     runID,
		Kind:      c.kind,
		VersionID: versionID,
		Code:      gated.code,
		Stop:      rs.stop,
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			result(core.UnitResult{Status: core.StatusStopped, TimeTakenMS: core.Millis(elapsed)})
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", c.e.unitTimeout, err)
		}
		ese := &core.ExecutionServiceError{VersionID: versionID, Cause: err}
		c.e.logger.Warn("unit execution failed", "run_id", runID, "version_id", versionID, "error", err)
		result(core.UnitResult{Status: core.StatusError, TimeTakenMS: core.Millis(elapsed), Error: ese.Error()})
		return
	}

	// A non-terminal result means the executor reports the outcome later
	// through Controller.Report.
	if res.TimeTakenMS == nil && res.Status.IsTerminal() {
		res.TimeTakenMS = core.Millis(elapsed)
	}
	result(res)
}

// collect applies updates until every unit is terminal.
func (c *Controller) collect(ctx context.Context, rs *runState) {
	stop := rs.stop
	var (
		timer *time.Timer
		grace <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for !c.settled(rs) {
		select {
		case u := <-rs.updates:
			c.apply(rs, u)
		case <-stop:
			stop = nil
			if c.e.stopGrace > 0 {
				timer = time.NewTimer(c.e.stopGrace)
				grace = timer.C
			}
		case <-grace:
			c.forceStop(rs, "stop grace period elapsed")
		case <-ctx.Done():
			c.forceStop(rs, "engine shut down")
		}
	}
}

func (c *Controller) settled(rs *runState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return allTerminal(rs.run)
}

// apply merges u into its run. The run id guard drops updates produced
// for any other run.
func (c *Controller) apply(rs *runState, u update) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u.runID != rs.run.ID {
		c.e.logger.Debug("dropping update for another run", "run_id", u.runID, "current", rs.run.ID)
		return
	}
	if !applyResult(rs.run, u.result) {
		return
	}
	c.publishLocked(rs, notifier.EventUnitUpdated, u.result.VersionID)
}

func (c *Controller) forceStop(rs *runState, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := stopPending(rs.run, reason)
	if len(ids) == 0 {
		return
	}
	c.e.logger.Info("finalized units as stopped", "run_id", rs.run.ID, "reason", reason, "units", len(ids))
	c.publishLocked(rs, notifier.EventUnitUpdated, "")
}

func (c *Controller) setPhase(rs *runState, phase core.RunPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if setPhase(rs.run, phase) {
		c.publishLocked(rs, notifier.EventPhase, "")
	}
}

func (c *Controller) completeRun(rs *runState) {
	c.mu.Lock()
	complete(rs.run, c.e.now())
	c.publishLocked(rs, notifier.EventRunCompleted, "")
	rep := c.rollupLocked(rs)
	snap := rs.run.Clone()
	c.completed = snap.Clone()
	c.mu.Unlock()

	c.e.logger.Info("run completed", "kind", c.kind, "run_id", snap.ID, "status", rep.Status,
		"passed", rep.Counts.Passed, "failed", rep.Counts.Failed, "total", rep.Counts.Total)
	c.persist(snap)
}

func (c *Controller) abortRun(rs *runState, msg string) {
	c.mu.Lock()
	abort(rs.run, msg, c.e.now())
	c.publishLocked(rs, notifier.EventRunAborted, "")
	snap := rs.run.Clone()
	c.mu.Unlock()

	c.e.logger.Error("run aborted", "kind", c.kind, "run_id", snap.ID, "error", msg)
	c.persist(snap)
}

func (c *Controller) persist(run *core.Run) {
	if c.e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.e.store.RecordRun(ctx, run); err != nil {
		c.e.logger.Error("failed to record run", "run_id", run.ID, "error", err)
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
