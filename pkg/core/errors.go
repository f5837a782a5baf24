package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrNothingToRerun is returned by RunFailedOnly when the previous run
	// has no failed units.
	ErrNothingToRerun = errors.New("no failed units to rerun")

	// ErrNoRun is returned when a kind has never run.
	ErrNoRun = errors.New("no run found")

	// ErrNoTargets is returned when a run is started without versions.
	ErrNoTargets = errors.New("no target versions")
)

// OrphanVersionError indicates a run target that does not exist in the
// version tree. It signals stale selection state in the caller.
type OrphanVersionError struct {
	VersionID string
}

func (e *OrphanVersionError) Error() string {
	return fmt.Sprintf("version %q does not exist in the workspace", e.VersionID)
}

// RunAlreadyActiveError is returned when a run is started while another run
// of the same kind has not reached a terminal phase.
type RunAlreadyActiveError struct {
	Kind  RunKind
	RunID string
}

func (e *RunAlreadyActiveError) Error() string {
	return fmt.Sprintf("a %s run is already active (run %s)", e.Kind, e.RunID)
}

// ParseServiceError is a transport or service failure of a parse batch.
// No verdicts are written when it occurs.
type ParseServiceError struct {
	Message string
	Cause   error
}

func (e *ParseServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse service: %s: %v", e.Message, e.Cause)
	}
	return "parse service: " + e.Message
}

func (e *ParseServiceError) Unwrap() error {
	return e.Cause
}

// ExecutionServiceError is a failure executing a single unit. It is recorded
// as the unit's Error status and never aborts the run.
type ExecutionServiceError struct {
	VersionID string
	Cause     error
}

func (e *ExecutionServiceError) Error() string {
	return fmt.Sprintf("execution of version %s failed: %v", e.VersionID, e.Cause)
}

func (e *ExecutionServiceError) Unwrap() error {
	return e.Cause
}

// SaveFailedError aborts a run whose target versions could not be persisted.
type SaveFailedError struct {
	VersionID string
	Cause     error
}

func (e *SaveFailedError) Error() string {
	return fmt.Sprintf("saving version %s failed: %v", e.VersionID, e.Cause)
}

func (e *SaveFailedError) Unwrap() error {
	return e.Cause
}

// UndeducableStatusError signals a unit status combination the aggregation
// rules cannot resolve. It is a defect and must not be converted into a
// degraded status.
type UndeducableStatusError struct {
	Statuses []Status
}

func (e *UndeducableStatusError) Error() string {
	if len(e.Statuses) == 0 {
		return "cannot deduce status of an empty group"
	}
	parts := make([]string, len(e.Statuses))
	for i, s := range e.Statuses {
		parts[i] = string(s)
	}
	return fmt.Sprintf("cannot deduce status from [%s]", strings.Join(parts, ", "))
}
