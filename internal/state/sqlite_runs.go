package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/testide/pkg/core"
)

const runColumns = `id, kind, targets, phase, stopping, completed, error, started_at, completed_at`

// RecordRun inserts or replaces a run and all of its units in one
// transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *core.Run) (err error) {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	targets, err := json.Marshal(run.Targets)
	if err != nil {
		return fmt.Errorf("failed to encode targets: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var completedAt sql.NullInt64
	if run.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: run.CompletedAt.UnixNano(), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			phase = excluded.phase,
			stopping = excluded.stopping,
			completed = excluded.completed,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		run.ID, string(run.Kind), string(targets), string(run.Phase), run.Stopping, run.Completed,
		nullString(run.Error), run.StartedAt.UnixNano(), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM run_units WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear units of run %s: %w", run.ID, err)
	}

	for pos, u := range run.UnitsInOrder() {
		var took sql.NullInt64
		if u.TimeTakenMS != nil {
			took = sql.NullInt64{Int64: *u.TimeTakenMS, Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_units (run_id, version_id, position, status, time_taken_ms, output, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, u.VersionID, pos, string(u.Status), took, nullString(u.Output), nullString(u.Error),
		)
		if err != nil {
			return fmt.Errorf("failed to record unit %s of run %s: %w", u.VersionID, run.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}

	s.logger.Debug("recorded run", slog.String("id", run.ID), slog.String("kind", string(run.Kind)),
		slog.String("phase", string(run.Phase)), slog.Int("units", len(run.Units)))
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, core.ErrNoRun)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := s.loadUnits(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// LatestRun retrieves the most recent run of a kind.
func (s *SQLiteStore) LatestRun(ctx context.Context, kind core.RunKind) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE kind = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		string(kind))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no %s run recorded: %w", kind, core.ErrNoRun)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	if err := s.loadUnits(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns retrieves the most recent runs, newest first. An empty kind lists
// every kind; a limit below 1 lists all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, kind core.RunKind, limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit < 1 {
		limit = -1
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	for _, run := range runs {
		if err := s.loadUnits(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *SQLiteStore) loadUnits(ctx context.Context, run *core.Run) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, status, time_taken_ms, output, error
		FROM run_units WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load units of run %s: %w", run.ID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			u      core.RunUnit
			status string
			took   sql.NullInt64
			output sql.NullString
			errMsg sql.NullString
		)
		if err := rows.Scan(&u.VersionID, &status, &took, &output, &errMsg); err != nil {
			return fmt.Errorf("failed to scan unit of run %s: %w", run.ID, err)
		}
		u.Status = core.Status(status)
		if took.Valid {
			ms := took.Int64
			u.TimeTakenMS = &ms
		}
		u.Output = output.String
		u.Error = errMsg.String

		if run.Units == nil {
			run.Units = make(map[string]core.RunUnit)
		}
		run.Units[u.VersionID] = u
	}
	return rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*core.Run, error) {
	var (
		run         core.Run
		kind        string
		targets     string
		phase       string
		errMsg      sql.NullString
		startedAt   int64
		completedAt sql.NullInt64
	)
	if err := row.Scan(&run.ID, &kind, &targets, &phase, &run.Stopping, &run.Completed,
		&errMsg, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(targets), &run.Targets); err != nil {
		return nil, fmt.Errorf("failed to decode targets of run %s: %w", run.ID, err)
	}
	run.Kind = core.RunKind(kind)
	run.Phase = core.RunPhase(phase)
	run.Error = errMsg.String
	run.StartedAt = time.Unix(0, startedAt).UTC()
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		run.CompletedAt = &t
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
