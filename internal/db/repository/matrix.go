package repository

import (
	"context"
	"database/sql"
	"fmt"

	"accessledger/internal/domain"
)

// MatrixRepo persists append-only matrix snapshots.
type MatrixRepo struct {
	db *sql.DB
}

// NewMatrixRepo creates a new MatrixRepo.
func NewMatrixRepo(db *sql.DB) *MatrixRepo {
	return &MatrixRepo{db: db}
}

const matrixColumns = `id, run_id, principal_ref, principal_id, principal_type,
	source_system_id, environment_code, service, access_level, degraded, updated_at`

func scanMatrixEntry(row interface{ Scan(...any) error }) (*domain.MatrixEntry, error) {
	var e domain.MatrixEntry
	var ref, source, env sql.NullString
	var degraded int
	err := row.Scan(&e.ID, &e.RunID, &ref, &e.PrincipalID, &e.PrincipalType,
		&source, &env, &e.Service, &e.AccessLevel, &degraded, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.PrincipalRef = strPtr(ref)
	e.SourceSystem = source.String
	e.Environment = env.String
	e.Degraded = degraded != 0
	return &e, nil
}

// InsertBatch appends a run's entries in a single transaction. Entries are
// never updated or deleted afterwards; each run owns its own snapshot.
func (r *MatrixRepo) InsertBatch(ctx context.Context, entries []domain.MatrixEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin matrix insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matrix_entries (run_id, principal_ref, principal_id, principal_type,
			source_system_id, environment_code, service, access_level, degraded, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare matrix insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, e := range entries {
		degraded := 0
		if e.Degraded {
			degraded = 1
		}
		var source, env any
		if e.SourceSystem != "" {
			source = e.SourceSystem
		}
		if e.Environment != "" {
			env = e.Environment
		}
		if _, err := stmt.ExecContext(ctx,
			e.RunID, nullStr(e.PrincipalRef), e.PrincipalID, e.PrincipalType,
			source, env, e.Service, e.AccessLevel, degraded, e.UpdatedAt); err != nil {
			return mapDBError(err)
		}
	}

	return tx.Commit()
}

// ListByRun returns a paginated slice of the run's snapshot.
func (r *MatrixRepo) ListByRun(ctx context.Context, runID string, page domain.PageRequest) ([]domain.MatrixEntry, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matrix_entries WHERE run_id = ?`, runID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+matrixColumns+` FROM matrix_entries
		 WHERE run_id = ? ORDER BY principal_id, service LIMIT ? OFFSET ?`,
		runID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var entries []domain.MatrixEntry
	for rows.Next() {
		e, err := scanMatrixEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

// SnapshotByRun loads the full snapshot for cross-run diffing, ordered by
// principal then service for deterministic iteration.
func (r *MatrixRepo) SnapshotByRun(ctx context.Context, runID string) ([]domain.MatrixEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+matrixColumns+` FROM matrix_entries
		 WHERE run_id = ? ORDER BY principal_id, service`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var entries []domain.MatrixEntry
	for rows.Next() {
		e, err := scanMatrixEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Compile-time check that MatrixRepo implements the port.
var _ domain.MatrixRepository = (*MatrixRepo)(nil)
