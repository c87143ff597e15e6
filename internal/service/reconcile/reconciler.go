// Package reconcile implements the reconciliation pipeline: the run
// controller that fans out source adapters, and the matrix reconciler that
// reduces their raw facts into a deduplicated, registry-resolved snapshot.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"accessledger/internal/domain"
	"accessledger/internal/service/registry"
)

// Reconciler turns one run's merged raw facts into matrix entries.
type Reconciler struct {
	registry *registry.Registry
	order    domain.AccessLevelOrder
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler with the given access-level order.
func NewReconciler(reg *registry.Registry, order domain.AccessLevelOrder, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{registry: reg, order: order, logger: logger}
}

// Reconcile resolves, deduplicates, and conflict-resolves the facts for one
// run, returning the entries to append plus the non-fatal conflict
// diagnostics. The fact slice is the complete batch for the run: the
// controller only calls this after every adapter has completed or failed.
//
// The final entry set is deterministic given the same fact set. Conflict
// resolution prefers the most-privileged access level; the residual tie is
// broken by the per-source observation sequence, which each adapter
// documents as stable.
func (r *Reconciler) Reconcile(ctx context.Context, run *domain.Run, facts []domain.ObservedFact) ([]domain.MatrixEntry, []domain.ConflictDiscarded, error) {
	type winner struct {
		fact      domain.ObservedFact
		principal *domain.Principal // nil on degraded facts
	}
	groups := make(map[domain.MatrixKey]winner)
	var discarded []domain.ConflictDiscarded

	now := time.Now().UTC()

	for _, fact := range facts {
		if fact.PrincipalID == "" || fact.Service == "" {
			r.logger.Warn("dropping malformed fact",
				"source", fact.SourceSystemID,
				"principal", fact.PrincipalID,
				"service", fact.Service,
			)
			continue
		}

		key := domain.PrincipalKey{
			PrincipalID:    fact.PrincipalID,
			SourceSystemID: fact.SourceSystemID,
			Environment:    run.Environment,
		}

		principal, err := r.registry.Resolve(ctx, key, fact.PrincipalType)
		if err != nil {
			var invalid *domain.InvalidKeyError
			if !errors.As(err, &invalid) {
				return nil, nil, err
			}
			// Degraded fact: keyable for the matrix but not resolvable
			// against the registry. Recorded explicitly rather than
			// flowing nulls through the core.
			r.logger.Warn("emitting degraded entry", "principal", fact.PrincipalID, "error", err)
			principal = nil
		} else if err := r.registry.Touch(ctx, principal, fact.ObservedAt); err != nil {
			return nil, nil, err
		}

		mkey := domain.MatrixKey{
			PrincipalID:  fact.PrincipalID,
			SourceSystem: fact.SourceSystemID,
			Environment:  run.Environment,
			Service:      fact.Service,
		}

		current, ok := groups[mkey]
		if !ok {
			groups[mkey] = winner{fact: fact, principal: principal}
			continue
		}
		if current.fact.AccessLevel == fact.AccessLevel {
			// Plain duplicate, not a conflict.
			continue
		}

		kept, dropped := pickWinner(r.order, current.fact, fact)
		if kept.Seq == fact.Seq && kept.SourceSystemID == fact.SourceSystemID {
			groups[mkey] = winner{fact: fact, principal: principal}
		}
		diag := domain.ConflictDiscarded{
			Key:       mkey,
			Kept:      kept.AccessLevel,
			Discarded: dropped.AccessLevel,
			Reason:    conflictReason(r.order, kept, dropped),
		}
		discarded = append(discarded, diag)
		r.logger.Info("conflicting fact discarded",
			"principal", mkey.PrincipalID,
			"service", mkey.Service,
			"kept", diag.Kept,
			"discarded", diag.Discarded,
			"reason", diag.Reason,
		)
	}

	entries := make([]domain.MatrixEntry, 0, len(groups))
	for mkey, w := range groups {
		e := domain.MatrixEntry{
			RunID:        run.ID,
			PrincipalID:  mkey.PrincipalID,
			SourceSystem: mkey.SourceSystem,
			Environment:  mkey.Environment,
			Service:      mkey.Service,
			AccessLevel:  w.fact.AccessLevel,
			UpdatedAt:    now,
		}
		if w.principal != nil {
			ref := w.principal.ID
			e.PrincipalRef = &ref
			e.PrincipalType = w.principal.Type
		} else {
			e.PrincipalType = w.fact.PrincipalType
			e.Degraded = true
		}
		entries = append(entries, e)
	}

	// Emission order is not guaranteed by the pipeline; sorting here keeps
	// batch inserts and tests deterministic anyway.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PrincipalID != entries[j].PrincipalID {
			return entries[i].PrincipalID < entries[j].PrincipalID
		}
		return entries[i].Service < entries[j].Service
	})

	return entries, discarded, nil
}

// pickWinner applies the conflict policy to two facts for the same key:
// most-privileged access level first, then last observed.
func pickWinner(order domain.AccessLevelOrder, a, b domain.ObservedFact) (kept, dropped domain.ObservedFact) {
	switch {
	case order.MorePrivileged(a.AccessLevel, b.AccessLevel):
		return a, b
	case order.MorePrivileged(b.AccessLevel, a.AccessLevel):
		return b, a
	case b.Seq > a.Seq:
		return b, a
	default:
		return a, b
	}
}

func conflictReason(order domain.AccessLevelOrder, kept, dropped domain.ObservedFact) string {
	if order.MorePrivileged(kept.AccessLevel, dropped.AccessLevel) {
		return "most-privileged"
	}
	return "last-observed"
}
