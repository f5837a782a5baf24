package core

import (
	"fmt"
	"time"
)

// =============================================================================
// Status
// =============================================================================

// Status is the status of a single run unit or an aggregated tree node.
type Status string

// Status constants.
const (
	StatusUnstarted Status = "unstarted"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

// IsTerminal reports whether the status can no longer change within a run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusStopped:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnstarted, StatusRunning, StatusSuccess, StatusError, StatusStopped:
		return true
	default:
		return false
	}
}

// =============================================================================
// Run kinds and phases
// =============================================================================

// RunKind identifies what a run does with its target versions.
type RunKind string

// Run kinds. At most one run per kind is active at a time.
const (
	RunKindParse RunKind = "parse"
	RunKindDry   RunKind = "dry_run"
	RunKindBuild RunKind = "build_run"
)

// RunKinds lists every kind in display order.
var RunKinds = []RunKind{RunKindParse, RunKindDry, RunKindBuild}

// ParseRunKind converts a string to a RunKind.
func ParseRunKind(s string) (RunKind, error) {
	switch RunKind(s) {
	case RunKindParse, RunKindDry, RunKindBuild:
		return RunKind(s), nil
	case "dryrun", "dry-run":
		return RunKindDry, nil
	case "build", "buildrun", "build-run":
		return RunKindBuild, nil
	default:
		return "", fmt.Errorf("unknown run kind %q", s)
	}
}

// Executes reports whether runs of this kind execute units on a backend.
func (k RunKind) Executes() bool {
	return k == RunKindDry || k == RunKindBuild
}

// RunPhase is the lifecycle state of a run.
type RunPhase string

// Run phases.
//
//	saving -> parsing -> aborted
//	saving -> parsing -> running -> completed
//	running -> stopping -> completed
const (
	PhaseSaving    RunPhase = "saving"
	PhaseParsing   RunPhase = "parsing"
	PhaseRunning   RunPhase = "running"
	PhaseStopping  RunPhase = "stopping"
	PhaseCompleted RunPhase = "completed"
	PhaseAborted   RunPhase = "aborted"
)

// IsTerminal reports whether no further transitions are possible.
func (p RunPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

// IsGating reports whether the run is still waiting for saves or parsing.
func (p RunPhase) IsGating() bool {
	return p == PhaseSaving || p == PhaseParsing
}

// =============================================================================
// Run units
// =============================================================================

// RunUnit is the execution record for one version within one run.
type RunUnit struct {
	VersionID   string `json:"version_id"`
	Status      Status `json:"status"`
	TimeTakenMS *int64 `json:"time_taken_ms,omitempty"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

// UnitResult is a status update for one unit, as delivered by an executor.
type UnitResult struct {
	VersionID   string `json:"version_id"`
	Status      Status `json:"status"`
	TimeTakenMS *int64 `json:"time_taken_ms,omitempty"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Millis returns a pointer to ms, for filling TimeTakenMS.
func Millis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

// =============================================================================
// Runs
// =============================================================================

// Run is one invocation of a run kind over a fixed list of target versions.
// Values handed out by the engine are snapshots and safe to read freely.
type Run struct {
	ID      string   `json:"id"`
	Kind    RunKind  `json:"kind"`
	Targets []string `json:"targets"`
	Phase   RunPhase `json:"phase"`

	// Units is empty while gating and for aborted runs.
	Units map[string]RunUnit `json:"units,omitempty"`

	Stopping  bool `json:"stopping"`
	Completed bool `json:"completed"`

	// Error is set only when the whole run aborted before any unit executed.
	Error string `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.Targets = append([]string(nil), r.Targets...)
	if r.Units != nil {
		c.Units = make(map[string]RunUnit, len(r.Units))
		for id, u := range r.Units {
			c.Units[id] = u
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// UnitsInOrder returns the run units in target order.
func (r *Run) UnitsInOrder() []RunUnit {
	units := make([]RunUnit, 0, len(r.Units))
	for _, id := range r.Targets {
		if u, ok := r.Units[id]; ok {
			units = append(units, u)
		}
	}
	return units
}

// VersionsWithStatus returns the target ids whose unit has the given status,
// in target order.
func (r *Run) VersionsWithStatus(status Status) []string {
	var ids []string
	for _, u := range r.UnitsInOrder() {
		if u.Status == status {
			ids = append(ids, u.VersionID)
		}
	}
	return ids
}
