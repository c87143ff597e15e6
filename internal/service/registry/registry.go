// Package registry implements the canonical principal registry: resolution
// of raw identity references to stable registry entries, observation
// touches, and retirement-candidate accounting.
package registry

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"accessledger/internal/domain"
)

// lockStripes bounds the per-key mutex table. Resolution serializes on the
// principal key, not on a single global lock, so independent source systems
// keep their concurrency.
const lockStripes = 64

// Registry resolves raw principal references against durable storage.
// Every resolve and touch writes through; no in-memory registry state
// survives a run boundary.
type Registry struct {
	principals domain.PrincipalRepository
	refs       domain.ReferenceRepository
	logger     *slog.Logger
	locks      [lockStripes]sync.Mutex
}

// New creates a Registry backed by the given repositories.
func New(principals domain.PrincipalRepository, refs domain.ReferenceRepository, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{principals: principals, refs: refs, logger: logger}
}

// Resolve looks up the registry entry for the given identity key, creating
// a newly-observed entry when absent. Resolution is idempotent: the same
// key always yields the same stable reference. Returns InvalidKeyError if
// any key component or the principal type is empty.
func (r *Registry) Resolve(ctx context.Context, key domain.PrincipalKey, principalType string) (*domain.Principal, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if principalType == "" {
		return nil, domain.ErrInvalidKey("principal %s from %s: principal type is required", key.PrincipalID, key.SourceSystemID)
	}

	mu := r.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	existing, err := r.principals.GetByKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	// The principal type table is observed vocabulary, not an allowlist;
	// types the adapters report for the first time are registered before
	// the row that references them.
	if err := r.refs.EnsurePrincipalType(ctx, domain.PrincipalType{Name: principalType}); err != nil {
		return nil, err
	}

	created, err := r.principals.Upsert(ctx, &domain.Principal{
		ID:           domain.NewID(),
		PrincipalID:  key.PrincipalID,
		SourceSystem: key.SourceSystemID,
		Environment:  key.Environment,
		Type:         principalType,
		Status:       domain.StatusActive,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("principal observed for the first time",
		"principal", key.PrincipalID,
		"source", key.SourceSystemID,
		"environment", key.Environment,
	)
	return created, nil
}

// Touch refreshes the principal's last-access timestamp and resets its
// missed-run counter. A principal coming back from pending-removal or
// disabled transitions to reactivated, and the reactivation is reported.
func (r *Registry) Touch(ctx context.Context, p *domain.Principal, observedAt time.Time) error {
	status := p.Status
	if p.Status.IsRetired() {
		status = domain.StatusReactivated
		r.logger.Warn("retired principal reactivated",
			"principal", p.PrincipalID,
			"source", p.SourceSystem,
			"environment", p.Environment,
			"previous_status", string(p.Status),
		)
	}

	if err := r.principals.Touch(ctx, p.ID, observedAt, status); err != nil {
		return err
	}
	p.Status = status
	p.MissedRuns = 0
	p.LastAccessAt = &observedAt
	return nil
}

// MarkUnobserved records that the principal was absent from the given run's
// raw facts. The durable missed-run counter is the accumulated
// candidate-for-retirement signal; status transitions are the Lifecycle
// Manager's decision, not made here.
func (r *Registry) MarkUnobserved(ctx context.Context, p *domain.Principal, runID string) (int, error) {
	missed, err := r.principals.RecordMiss(ctx, p.ID)
	if err != nil {
		return 0, err
	}
	r.logger.Debug("principal unobserved",
		"principal", p.PrincipalID,
		"source", p.SourceSystem,
		"run", runID,
		"missed_runs", missed,
	)
	return missed, nil
}

// lockFor returns the stripe mutex for the key.
func (r *Registry) lockFor(key domain.PrincipalKey) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.PrincipalID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.SourceSystemID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.Environment))
	return &r.locks[h.Sum32()%lockStripes]
}
