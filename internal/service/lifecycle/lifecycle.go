// Package lifecycle maintains principal lifecycle status after each run:
// miss counting, the retirement grace period, and the pending-removal and
// disabled transitions.
package lifecycle

import (
	"context"
	"log/slog"

	"accessledger/internal/domain"
	"accessledger/internal/service/registry"
)

// DefaultGracePeriodRuns is the default number of consecutive successful
// runs a principal may be unobserved before retirement begins.
const DefaultGracePeriodRuns = 2

// Manager applies lifecycle transitions after a run closes.
type Manager struct {
	principals domain.PrincipalRepository
	registry   *registry.Registry
	graceRuns  int
	logger     *slog.Logger
}

// NewManager creates a lifecycle manager. graceRuns <= 0 selects the default.
func NewManager(principals domain.PrincipalRepository, reg *registry.Registry, graceRuns int, logger *slog.Logger) *Manager {
	if graceRuns <= 0 {
		graceRuns = DefaultGracePeriodRuns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{principals: principals, registry: reg, graceRuns: graceRuns, logger: logger}
}

// Apply processes the closed run: every registry principal in the run's
// environment that was not touched during the run accrues a miss, except
// principals whose source system failed this run. Absence behind a failed
// adapter is "unknown", not "gone", and must not count toward retirement.
//
// At exactly graceRuns misses the principal moves to pending-removal;
// beyond it, to disabled. Already-disabled principals stay put until a
// future touch reactivates them.
func (m *Manager) Apply(ctx context.Context, run *domain.Run) error {
	if !run.IsClosed() {
		return domain.ErrValidation("lifecycle requires a closed run")
	}

	unobserved, err := m.principals.ListUntouchedSince(ctx, run.Environment, run.StartedAt, run.FailedSources)
	if err != nil {
		return err
	}

	for i := range unobserved {
		p := &unobserved[i]
		if p.Status == domain.StatusDisabled {
			continue
		}

		missed, err := m.registry.MarkUnobserved(ctx, p, run.ID)
		if err != nil {
			return err
		}

		switch {
		case missed > m.graceRuns:
			if err := m.principals.SetStatus(ctx, p.ID, domain.StatusDisabled); err != nil {
				return err
			}
			m.logger.Warn("principal disabled",
				"principal", p.PrincipalID,
				"source", p.SourceSystem,
				"environment", p.Environment,
				"missed_runs", missed,
			)
		case missed >= m.graceRuns:
			if err := m.principals.SetStatus(ctx, p.ID, domain.StatusPendingRemoval); err != nil {
				return err
			}
			m.logger.Info("principal pending removal",
				"principal", p.PrincipalID,
				"source", p.SourceSystem,
				"environment", p.Environment,
				"missed_runs", missed,
			)
		}
	}

	return nil
}
