package app

import (
	"context"

	"accessledger/internal/adapter"
	"accessledger/internal/config"
	"accessledger/internal/domain"
)

// seedReferenceData inserts the configured environments, the source systems
// behind the wired adapters, and the standard principal types. All inserts
// are conflict-tolerant, so calling this on every startup is safe.
func seedReferenceData(ctx context.Context, refs domain.ReferenceRepository, cfg *config.Config, adapters []adapter.SourceAdapter) error {
	for _, env := range cfg.Environments {
		if err := refs.EnsureEnvironment(ctx, domain.Environment{Code: env}); err != nil {
			return err
		}
	}

	for _, a := range adapters {
		if err := refs.EnsureSourceSystem(ctx, domain.SourceSystem{ID: a.SourceSystemID()}); err != nil {
			return err
		}
	}

	types := []domain.PrincipalType{
		{Name: "user", Description: "Human user account"},
		{Name: "service_account", Description: "Machine identity"},
		{Name: "group", Description: "Named collection of principals"},
	}
	for _, t := range types {
		if err := refs.EnsurePrincipalType(ctx, t); err != nil {
			return err
		}
	}

	return nil
}
