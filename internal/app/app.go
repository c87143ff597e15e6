// Package app provides application-level wiring and dependency injection
// for the access ledger service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"accessledger/internal/adapter"
	"accessledger/internal/config"
	"accessledger/internal/db/repository"
	"accessledger/internal/domain"
	"accessledger/internal/service/drift"
	"accessledger/internal/service/lifecycle"
	"accessledger/internal/service/reconcile"
	"accessledger/internal/service/registry"
)

// Deps holds the external dependencies that main() must provide: database
// handles, config, logger, and the source adapters for this deployment.
type Deps struct {
	Cfg      *config.Config
	WriteDB  *sql.DB
	ReadDB   *sql.DB
	Adapters []adapter.SourceAdapter
	Logger   *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Controller *reconcile.Controller
	Drift      *drift.Service
	Scheduler  *reconcile.Scheduler

	// Repositories the API router needs directly.
	Runs       domain.RunRepository
	Matrix     domain.MatrixRepository
	Principals domain.PrincipalRepository
	APIKeys    domain.APIKeyRepository
}

// New wires all repositories and services from the provided deps and seeds
// reference data.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Repositories: writes go through the single-writer pool, list-heavy
	// API reads through the read pool.
	principalRepo := repository.NewPrincipalRepo(deps.WriteDB)
	runRepo := repository.NewRunRepo(deps.WriteDB)
	matrixRepo := repository.NewMatrixRepo(deps.WriteDB)
	referenceRepo := repository.NewReferenceRepo(deps.WriteDB)
	apiKeyRepo := repository.NewAPIKeyRepo(deps.ReadDB)

	if err := seedReferenceData(ctx, referenceRepo, cfg, deps.Adapters); err != nil {
		return nil, fmt.Errorf("seed reference data: %w", err)
	}

	reg := registry.New(principalRepo, referenceRepo, logger)
	reconciler := reconcile.NewReconciler(reg, domain.NewAccessLevelOrder(cfg.AccessLevels), logger)
	lifecycleMgr := lifecycle.NewManager(principalRepo, reg, cfg.GracePeriodRuns, logger)
	controller := reconcile.NewController(runRepo, matrixRepo, reconciler, lifecycleMgr, deps.Adapters, logger)
	driftSvc := drift.NewService(runRepo, matrixRepo)

	scheduler := reconcile.NewScheduler(controller, logger)
	if cfg.RunSchedule != "" {
		for _, env := range cfg.Environments {
			if err := scheduler.Add(env, cfg.RunSchedule); err != nil {
				return nil, fmt.Errorf("schedule runs for %s: %w", env, err)
			}
		}
	}

	return &App{
		Controller: controller,
		Drift:      driftSvc,
		Scheduler:  scheduler,
		Runs:       runRepo,
		Matrix:     matrixRepo,
		Principals: principalRepo,
		APIKeys:    apiKeyRepo,
	}, nil
}
