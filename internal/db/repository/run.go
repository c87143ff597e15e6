package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"accessledger/internal/domain"
)

// RunRepo persists reconciliation runs.
type RunRepo struct {
	db *sql.DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

const runColumns = `id, status, trigger_type, triggered_by, description, environment,
	failed_sources, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*domain.Run, error) {
	var r domain.Run
	var failedSources string
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Status, &r.TriggerType, &r.TriggeredBy, &r.Description,
		&r.Environment, &failedSources, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	r.FailedSources = decodeStrings(failedSources)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// Create inserts a new run in the OPEN state.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, trigger_type, triggered_by, description, environment, failed_sources, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.TriggerType, run.TriggeredBy, run.Description,
		run.Environment, encodeStrings(run.FailedSources), run.StartedAt)
	return mapDBError(err)
}

// Get returns the run with the given ID.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("run %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns a paginated list of runs, newest first.
func (r *RunRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.Run, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

// SetStatus moves an open run between its non-terminal states. Closed runs
// are immutable; attempting to change one is a conflict.
func (r *RunRepo) SetStatus(ctx context.Context, id string, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE id = ? AND status NOT IN (?, ?)`,
		status, id, domain.RunStatusClosed, domain.RunStatusClosedPartial)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.closedOrMissing(ctx, id)
	}
	return nil
}

// Close moves the run to a terminal state. Returns ConflictError if the run
// is already closed.
func (r *RunRepo) Close(ctx context.Context, id string, status string, finishedAt time.Time, failedSources []string, description string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, failed_sources = ?, description = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		status, finishedAt, encodeStrings(failedSources), description,
		id, domain.RunStatusClosed, domain.RunStatusClosedPartial)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.closedOrMissing(ctx, id)
	}
	return nil
}

// LatestClosed returns the most recent closed run for the environment,
// excluding the given run ID.
func (r *RunRepo) LatestClosed(ctx context.Context, environment string, excludeID string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE environment = ? AND id != ? AND status IN (?, ?)
		 ORDER BY started_at DESC, id DESC LIMIT 1`,
		environment, excludeID, domain.RunStatusClosed, domain.RunStatusClosedPartial)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("no prior closed run for environment %s", environment)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// closedOrMissing distinguishes "already closed" from "no such run".
func (r *RunRepo) closedOrMissing(ctx context.Context, id string) error {
	run, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.IsClosed() {
		return domain.ErrConflict("run %s is closed and immutable", id)
	}
	return domain.ErrNotFound("run %s not found", id)
}

// Compile-time check that RunRepo implements the port.
var _ domain.RunRepository = (*RunRepo)(nil)
