package repository

import (
	"context"
	"database/sql"

	"accessledger/internal/domain"
)

// ReferenceRepo manages environments, source systems, and principal types.
type ReferenceRepo struct {
	db *sql.DB
}

// NewReferenceRepo creates a new ReferenceRepo.
func NewReferenceRepo(db *sql.DB) *ReferenceRepo {
	return &ReferenceRepo{db: db}
}

// EnsureEnvironment inserts the environment if it does not exist.
func (r *ReferenceRepo) EnsureEnvironment(ctx context.Context, env domain.Environment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO environments (code, description) VALUES (?, ?)
		 ON CONFLICT (code) DO NOTHING`,
		env.Code, env.Description)
	return mapDBError(err)
}

// EnsureSourceSystem inserts the source system if it does not exist.
func (r *ReferenceRepo) EnsureSourceSystem(ctx context.Context, src domain.SourceSystem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO source_systems (id, description) VALUES (?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		src.ID, src.Description)
	return mapDBError(err)
}

// EnsurePrincipalType inserts the principal type if it does not exist.
func (r *ReferenceRepo) EnsurePrincipalType(ctx context.Context, pt domain.PrincipalType) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO principal_types (name, description) VALUES (?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		pt.Name, pt.Description)
	return mapDBError(err)
}

// ListEnvironments returns all environments ordered by code.
func (r *ReferenceRepo) ListEnvironments(ctx context.Context) ([]domain.Environment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, description FROM environments ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var envs []domain.Environment
	for rows.Next() {
		var e domain.Environment
		if err := rows.Scan(&e.Code, &e.Description); err != nil {
			return nil, err
		}
		envs = append(envs, e)
	}
	return envs, rows.Err()
}

// ListSourceSystems returns all source systems ordered by id.
func (r *ReferenceRepo) ListSourceSystems(ctx context.Context) ([]domain.SourceSystem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, description FROM source_systems ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var srcs []domain.SourceSystem
	for rows.Next() {
		var s domain.SourceSystem
		if err := rows.Scan(&s.ID, &s.Description); err != nil {
			return nil, err
		}
		srcs = append(srcs, s)
	}
	return srcs, rows.Err()
}

// ListPrincipalTypes returns all principal types ordered by name.
func (r *ReferenceRepo) ListPrincipalTypes(ctx context.Context) ([]domain.PrincipalType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, description FROM principal_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var types []domain.PrincipalType
	for rows.Next() {
		var t domain.PrincipalType
		if err := rows.Scan(&t.Name, &t.Description); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// Compile-time check that ReferenceRepo implements the port.
var _ domain.ReferenceRepository = (*ReferenceRepo)(nil)
