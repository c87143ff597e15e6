package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"accessledger/internal/domain"
)

// seedReference inserts the reference rows the FK constraints require.
func seedReference(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	refs := NewReferenceRepo(db)

	for _, env := range []string{"PROD", "STAGING"} {
		require.NoError(t, refs.EnsureEnvironment(ctx, domain.Environment{Code: env}))
	}
	for _, src := range []string{"aws-iam", "github", "ldap"} {
		require.NoError(t, refs.EnsureSourceSystem(ctx, domain.SourceSystem{ID: src}))
	}
	for _, pt := range []string{"user", "service_account", "group"} {
		require.NoError(t, refs.EnsurePrincipalType(ctx, domain.PrincipalType{Name: pt}))
	}
}
