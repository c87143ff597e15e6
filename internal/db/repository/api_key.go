package repository

import (
	"context"
	"database/sql"
	"errors"

	"accessledger/internal/domain"
)

// APIKeyRepo persists hashed API keys.
type APIKeyRepo struct {
	db *sql.DB
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(db *sql.DB) *APIKeyRepo {
	return &APIKeyRepo{db: db}
}

const apiKeyColumns = `id, name, subject, is_admin, key_prefix, key_hash, expires_at, created_at`

func scanAPIKey(row interface{ Scan(...any) error }) (*domain.APIKey, error) {
	var k domain.APIKey
	var isAdmin int
	var expires sql.NullTime
	err := row.Scan(&k.ID, &k.Name, &k.Subject, &isAdmin, &k.KeyPrefix, &k.KeyHash,
		&expires, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	k.IsAdmin = isAdmin != 0
	if expires.Valid {
		t := expires.Time
		k.ExpiresAt = &t
	}
	return &k, nil
}

// Create inserts a new API key record.
func (r *APIKeyRepo) Create(ctx context.Context, k *domain.APIKey) error {
	isAdmin := 0
	if k.IsAdmin {
		isAdmin = 1
	}
	var expires any
	if k.ExpiresAt != nil {
		expires = *k.ExpiresAt
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, subject, is_admin, key_prefix, key_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Name, k.Subject, isAdmin, k.KeyPrefix, k.KeyHash, expires, k.CreatedAt)
	return mapDBError(err)
}

// GetByHash returns the key matching the given SHA-256 hash.
func (r *APIKeyRepo) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ?`, hash)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("api key not found")
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

// List returns a paginated list of API keys, newest first.
func (r *APIKeyRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.APIKey, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var keys []domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, 0, err
		}
		keys = append(keys, *k)
	}
	return keys, total, rows.Err()
}

// Delete removes an API key.
func (r *APIKeyRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("api key %s not found", id)
	}
	return nil
}

// Compile-time check that APIKeyRepo implements the port.
var _ domain.APIKeyRepository = (*APIKeyRepo)(nil)
