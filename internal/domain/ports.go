package domain

import (
	"context"
	"time"
)

// ReferenceRepository manages immutable reference data: environments,
// source systems, and principal types.
type ReferenceRepository interface {
	EnsureEnvironment(ctx context.Context, env Environment) error
	EnsureSourceSystem(ctx context.Context, src SourceSystem) error
	EnsurePrincipalType(ctx context.Context, pt PrincipalType) error
	ListEnvironments(ctx context.Context) ([]Environment, error)
	ListSourceSystems(ctx context.Context) ([]SourceSystem, error)
	ListPrincipalTypes(ctx context.Context) ([]PrincipalType, error)
}

// PrincipalRepository persists canonical registry entries. Rows are never
// deleted; retirement is a status change.
type PrincipalRepository interface {
	// Upsert inserts the principal if its key is unknown and returns the
	// stored row either way. The insert relies on the unique index over
	// (principal_id, source_system, environment) so concurrent resolvers
	// of the same key converge on one row.
	Upsert(ctx context.Context, p *Principal) (*Principal, error)
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByKey(ctx context.Context, key PrincipalKey) (*Principal, error)
	// Touch refreshes last_access_at, resets the missed-run counter, and
	// sets the given status.
	Touch(ctx context.Context, id string, observedAt time.Time, status PrincipalStatus) error
	// RecordMiss increments the missed-run counter and returns the new value.
	RecordMiss(ctx context.Context, id string) (int, error)
	SetStatus(ctx context.Context, id string, status PrincipalStatus) error
	SetJiraTicket(ctx context.Context, id string, ticket string) error
	List(ctx context.Context, page PageRequest) ([]Principal, int64, error)
	// ListUntouchedSince returns principals in the environment whose
	// last_access_at predates the cutoff (or was never set), excluding the
	// given source systems.
	ListUntouchedSince(ctx context.Context, environment string, cutoff time.Time, excludeSources []string) ([]Principal, error)
}

// RunRepository persists reconciliation runs. Closed runs are immutable.
type RunRepository interface {
	Create(ctx context.Context, r *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, page PageRequest) ([]Run, int64, error)
	SetStatus(ctx context.Context, id string, status string) error
	// Close moves the run to a terminal state. Returns ConflictError if the
	// run is already closed.
	Close(ctx context.Context, id string, status string, finishedAt time.Time, failedSources []string, description string) error
	// LatestClosed returns the most recent closed run for the environment,
	// excluding the given run ID. NotFoundError when no prior run exists.
	LatestClosed(ctx context.Context, environment string, excludeID string) (*Run, error)
}

// MatrixRepository persists append-only matrix snapshots.
type MatrixRepository interface {
	InsertBatch(ctx context.Context, entries []MatrixEntry) error
	ListByRun(ctx context.Context, runID string, page PageRequest) ([]MatrixEntry, int64, error)
	// SnapshotByRun loads the full snapshot for cross-run diffing.
	SnapshotByRun(ctx context.Context, runID string) ([]MatrixEntry, error)
}

// APIKeyRepository persists hashed API keys for programmatic access.
type APIKeyRepository interface {
	Create(ctx context.Context, k *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	List(ctx context.Context, page PageRequest) ([]APIKey, int64, error)
	Delete(ctx context.Context, id string) error
}
