// Package drift compares two runs' matrix snapshots and classifies the
// differences.
package drift

import (
	"context"
	"sort"

	"accessledger/internal/domain"
)

// Service computes drift between closed runs. Diff is a pure function of
// two run identifiers: both snapshots are immutable, so re-running a diff
// always yields the same report.
type Service struct {
	runs   domain.RunRepository
	matrix domain.MatrixRepository
}

// NewService creates a drift service.
func NewService(runs domain.RunRepository, matrix domain.MatrixRepository) *Service {
	return &Service{runs: runs, matrix: matrix}
}

// Diff classifies every matrix key present in either run's snapshot.
// Records are ordered by principal identifier then service name. Unchanged
// cells are omitted unless opts.IncludeUnchanged is set.
//
// Both runs must be closed; diffing an in-flight run would not be
// re-auditable.
func (s *Service) Diff(ctx context.Context, priorRunID, currentRunID string, opts domain.DiffOptions) ([]domain.ChangeRecord, error) {
	if priorRunID == "" || currentRunID == "" {
		return nil, domain.ErrValidation("both run ids are required")
	}

	for _, id := range []string{priorRunID, currentRunID} {
		run, err := s.runs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !run.IsClosed() {
			return nil, domain.ErrValidation("run %s is not closed", id)
		}
	}

	prior, err := s.snapshotIndex(ctx, priorRunID)
	if err != nil {
		return nil, err
	}
	current, err := s.snapshotIndex(ctx, currentRunID)
	if err != nil {
		return nil, err
	}

	var records []domain.ChangeRecord

	for key, oldLevel := range prior {
		newLevel, ok := current[key]
		switch {
		case !ok:
			records = append(records, domain.ChangeRecord{
				Key: key, Change: domain.ChangeRemoved, OldAccess: oldLevel,
			})
		case newLevel != oldLevel:
			records = append(records, domain.ChangeRecord{
				Key: key, Change: domain.ChangeModified, OldAccess: oldLevel, NewAccess: newLevel,
			})
		case opts.IncludeUnchanged:
			records = append(records, domain.ChangeRecord{
				Key: key, Change: domain.ChangeUnchanged, OldAccess: oldLevel, NewAccess: newLevel,
			})
		}
	}
	for key, newLevel := range current {
		if _, ok := prior[key]; !ok {
			records = append(records, domain.ChangeRecord{
				Key: key, Change: domain.ChangeAdded, NewAccess: newLevel,
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Key, records[j].Key
		if a.PrincipalID != b.PrincipalID {
			return a.PrincipalID < b.PrincipalID
		}
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		if a.SourceSystem != b.SourceSystem {
			return a.SourceSystem < b.SourceSystem
		}
		return a.Environment < b.Environment
	})

	return records, nil
}

// DiffAgainstPrior diffs the run against the most recent closed run before
// it in the same environment.
func (s *Service) DiffAgainstPrior(ctx context.Context, runID string, opts domain.DiffOptions) ([]domain.ChangeRecord, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	prior, err := s.runs.LatestClosed(ctx, run.Environment, runID)
	if err != nil {
		return nil, err
	}
	return s.Diff(ctx, prior.ID, runID, opts)
}

// snapshotIndex loads a run's snapshot as a key → access-level map.
func (s *Service) snapshotIndex(ctx context.Context, runID string) (map[domain.MatrixKey]string, error) {
	entries, err := s.matrix.SnapshotByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	index := make(map[domain.MatrixKey]string, len(entries))
	for _, e := range entries {
		index[e.Key()] = e.AccessLevel
	}
	return index, nil
}
