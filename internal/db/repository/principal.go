package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"accessledger/internal/domain"
)

// PrincipalRepo persists canonical registry entries.
type PrincipalRepo struct {
	db *sql.DB
}

// NewPrincipalRepo creates a new PrincipalRepo.
func NewPrincipalRepo(db *sql.DB) *PrincipalRepo {
	return &PrincipalRepo{db: db}
}

const principalColumns = `id, principal_id, source_system_id, environment_code, principal_type,
	display_name, internal_alias, email, jira_ticket, status, missed_runs, created_at, last_access_at`

func scanPrincipal(row interface{ Scan(...any) error }) (*domain.Principal, error) {
	var p domain.Principal
	var ticket sql.NullString
	var lastAccess sql.NullTime
	var status string
	err := row.Scan(&p.ID, &p.PrincipalID, &p.SourceSystem, &p.Environment, &p.Type,
		&p.DisplayName, &p.InternalAlias, &p.Email, &ticket, &status, &p.MissedRuns,
		&p.CreatedAt, &lastAccess)
	if err != nil {
		return nil, err
	}
	p.JiraTicket = strPtr(ticket)
	p.Status = domain.PrincipalStatus(status)
	if lastAccess.Valid {
		t := lastAccess.Time
		p.LastAccessAt = &t
	}
	return &p, nil
}

// Upsert inserts the principal if its key is unknown and returns the stored
// row either way. The unique index over (principal_id, source_system_id,
// environment_code) makes concurrent inserts of the same key converge on a
// single row.
func (r *PrincipalRepo) Upsert(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO principals (id, principal_id, source_system_id, environment_code, principal_type,
			display_name, internal_alias, email, status, missed_runs, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT (principal_id, source_system_id, environment_code) DO NOTHING`,
		p.ID, p.PrincipalID, p.SourceSystem, p.Environment, p.Type,
		p.DisplayName, p.InternalAlias, p.Email, string(p.Status), p.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByKey(ctx, p.Key())
}

// GetByID returns the principal with the given stable reference.
func (r *PrincipalRepo) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("principal %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByKey returns the principal with the given identity key.
func (r *PrincipalRepo) GetByKey(ctx context.Context, key domain.PrincipalKey) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals
		 WHERE principal_id = ? AND source_system_id = ? AND environment_code = ?`,
		key.PrincipalID, key.SourceSystemID, key.Environment)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("principal %s not found in %s/%s",
			key.PrincipalID, key.SourceSystemID, key.Environment)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Touch refreshes last_access_at, resets the missed-run counter, and sets
// the given status.
func (r *PrincipalRepo) Touch(ctx context.Context, id string, observedAt time.Time, status domain.PrincipalStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE principals SET last_access_at = ?, missed_runs = 0, status = ? WHERE id = ?`,
		observedAt, string(status), id)
	if err != nil {
		return mapDBError(err)
	}
	return requireRow(res, id)
}

// RecordMiss increments the missed-run counter and returns the new value.
func (r *PrincipalRepo) RecordMiss(ctx context.Context, id string) (int, error) {
	var missed int
	err := r.db.QueryRowContext(ctx,
		`UPDATE principals SET missed_runs = missed_runs + 1 WHERE id = ? RETURNING missed_runs`,
		id).Scan(&missed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound("principal %s not found", id)
	}
	if err != nil {
		return 0, err
	}
	return missed, nil
}

// SetStatus updates the lifecycle status.
func (r *PrincipalRepo) SetStatus(ctx context.Context, id string, status domain.PrincipalStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE principals SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return mapDBError(err)
	}
	return requireRow(res, id)
}

// SetJiraTicket attaches an externally-assigned ticket reference.
func (r *PrincipalRepo) SetJiraTicket(ctx context.Context, id string, ticket string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE principals SET jira_ticket = ? WHERE id = ?`, ticket, id)
	if err != nil {
		return mapDBError(err)
	}
	return requireRow(res, id)
}

// List returns a paginated list of registry principals.
func (r *PrincipalRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.Principal, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM principals`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals
		 ORDER BY environment_code, source_system_id, principal_id LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var principals []domain.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, 0, err
		}
		principals = append(principals, *p)
	}
	return principals, total, rows.Err()
}

// ListUntouchedSince returns principals in the environment whose
// last_access_at predates the cutoff (or was never set), excluding the
// given source systems.
func (r *PrincipalRepo) ListUntouchedSince(ctx context.Context, environment string, cutoff time.Time, excludeSources []string) ([]domain.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals
		 WHERE environment_code = ? AND (last_access_at IS NULL OR last_access_at < ?)`
	args := []any{environment, cutoff}
	for _, src := range excludeSources {
		query += ` AND source_system_id != ?`
		args = append(args, src)
	}
	query += ` ORDER BY principal_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var principals []domain.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, *p)
	}
	return principals, rows.Err()
}

// requireRow maps a zero-row update to NotFoundError.
func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("principal %s not found", id)
	}
	return nil
}

// Compile-time check that PrincipalRepo implements the port.
var _ domain.PrincipalRepository = (*PrincipalRepo)(nil)
