package engine

// reducer.go - pure state transitions of a single run.
//
// Every function here mutates only the *core.Run it is handed. The
// controller calls them while holding its lock, from the run's owner
// goroutine or from Stop.

import (
	"time"

	"github.com/leapstack-labs/testide/pkg/core"
)

// newRun creates a run in the saving phase.
func newRun(id string, kind core.RunKind, targets []string, now time.Time) *core.Run {
	return &core.Run{
		ID:        id,
		Kind:      kind,
		Targets:   append([]string(nil), targets...),
		Phase:     core.PhaseSaving,
		StartedAt: now,
	}
}

// setPhase moves a gating run forward. A stopping run keeps its phase
// until completion.
func setPhase(run *core.Run, phase core.RunPhase) bool {
	if run.Phase == phase || run.Phase.IsTerminal() || run.Phase == core.PhaseStopping {
		return false
	}
	run.Phase = phase
	return true
}

// beginUnits creates one Unstarted unit per target and enters Running, or
// Stopping when a stop arrived during gating.
func beginUnits(run *core.Run) {
	run.Units = make(map[string]core.RunUnit, len(run.Targets))
	for _, id := range run.Targets {
		run.Units[id] = core.RunUnit{VersionID: id, Status: core.StatusUnstarted}
	}
	if run.Stopping {
		run.Phase = core.PhaseStopping
	} else {
		run.Phase = core.PhaseRunning
	}
}

// applyResult merges one unit update. It reports whether the run changed.
//
// Updates are ignored for unknown units, for units that already reached a
// terminal status, for completed runs, and for transitions back to
// Unstarted.
func applyResult(run *core.Run, res core.UnitResult) bool {
	if run.Completed || !res.Status.Valid() {
		return false
	}
	unit, ok := run.Units[res.VersionID]
	if !ok || unit.Status.IsTerminal() {
		return false
	}
	if res.Status == core.StatusUnstarted && unit.Status != core.StatusUnstarted {
		return false
	}
	if res.Status == unit.Status && res.Output == "" && res.Error == "" && res.TimeTakenMS == nil {
		return false
	}

	unit.Status = res.Status
	if res.TimeTakenMS != nil {
		ms := *res.TimeTakenMS
		unit.TimeTakenMS = &ms
	}
	if res.Output != "" {
		unit.Output = res.Output
	}
	if res.Error != "" {
		unit.Error = res.Error
	}
	run.Units[res.VersionID] = unit
	return true
}

// requestStop marks the run as stopping. It reports false when the run is
// already stopping or finished.
func requestStop(run *core.Run) bool {
	if run.Completed || run.Stopping {
		return false
	}
	run.Stopping = true
	if run.Phase == core.PhaseRunning {
		run.Phase = core.PhaseStopping
	}
	return true
}

// stopPending finalizes every non-terminal unit as Stopped and returns
// their ids in target order.
func stopPending(run *core.Run, reason string) []string {
	var ids []string
	for _, id := range run.Targets {
		unit, ok := run.Units[id]
		if !ok || unit.Status.IsTerminal() {
			continue
		}
		unit.Status = core.StatusStopped
		if reason != "" {
			unit.Error = reason
		}
		run.Units[id] = unit
		ids = append(ids, id)
	}
	return ids
}

// allTerminal reports whether every unit has a terminal status.
func allTerminal(run *core.Run) bool {
	for _, u := range run.Units {
		if !u.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// complete finishes a run whose units are all terminal.
func complete(run *core.Run, now time.Time) {
	run.Phase = core.PhaseCompleted
	run.Completed = true
	run.Stopping = false
	run.CompletedAt = &now
}

// abort finishes a run that failed while gating. It never carries units.
func abort(run *core.Run, msg string, now time.Time) {
	run.Phase = core.PhaseAborted
	run.Completed = true
	run.Stopping = false
	run.Error = msg
	run.Units = nil
	run.CompletedAt = &now
}
