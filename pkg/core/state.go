package core

import "context"

// Store persists completed runs so that history and failed-only reruns
// survive a restart.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	// RecordRun inserts or replaces a run together with all of its units.
	RecordRun(ctx context.Context, run *Run) error
	// GetRun returns a run by id, or ErrNoRun.
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns the most recent runs, newest first. An empty kind lists all kinds.
	ListRuns(ctx context.Context, kind RunKind, limit int) ([]*Run, error)
	// LatestRun returns the most recent run of a kind, or ErrNoRun.
	LatestRun(ctx context.Context, kind RunKind) (*Run, error)
}
