package registry

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "accessledger/internal/db"
	"accessledger/internal/db/repository"
	"accessledger/internal/domain"
)

func setupRegistry(t *testing.T) (*Registry, *repository.PrincipalRepo, *repository.ReferenceRepo) {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	seedReference(t, writeDB)
	principals := repository.NewPrincipalRepo(writeDB)
	refs := repository.NewReferenceRepo(writeDB)
	return New(principals, refs, nil), principals, refs
}

func seedReference(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	refs := repository.NewReferenceRepo(db)
	require.NoError(t, refs.EnsureEnvironment(ctx, domain.Environment{Code: "PROD"}))
	require.NoError(t, refs.EnsureSourceSystem(ctx, domain.SourceSystem{ID: "aws-iam"}))
	require.NoError(t, refs.EnsureSourceSystem(ctx, domain.SourceSystem{ID: "github"}))
	require.NoError(t, refs.EnsurePrincipalType(ctx, domain.PrincipalType{Name: "user"}))
}

func TestRegistry_Resolve_CreatesOnFirstObservation(t *testing.T) {
	reg, _, _ := setupRegistry(t)
	ctx := context.Background()

	key := domain.PrincipalKey{PrincipalID: "alice", SourceSystemID: "aws-iam", Environment: "PROD"}
	p, err := reg.Resolve(ctx, key, "user")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.StatusActive, p.Status)
}

func TestRegistry_Resolve_Idempotent(t *testing.T) {
	reg, _, _ := setupRegistry(t)
	ctx := context.Background()

	key := domain.PrincipalKey{PrincipalID: "alice", SourceSystemID: "aws-iam", Environment: "PROD"}
	first, err := reg.Resolve(ctx, key, "user")
	require.NoError(t, err)

	second, err := reg.Resolve(ctx, key, "user")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestRegistry_Resolve_ConcurrentSameKeyConverges(t *testing.T) {
	reg, repo, _ := setupRegistry(t)
	ctx := context.Background()
	key := domain.PrincipalKey{PrincipalID: "alice", SourceSystemID: "aws-iam", Environment: "PROD"}

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := reg.Resolve(ctx, key, "user")
			if err == nil {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.Equal(t, ids[0], id)
	}

	_, total, err := repo.List(ctx, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRegistry_Resolve_UnseededTypeIsRegistered(t *testing.T) {
	reg, repo, refs := setupRegistry(t)
	ctx := context.Background()

	// "robot" was never seeded; the first observation registers it.
	key := domain.PrincipalKey{PrincipalID: "bot-1", SourceSystemID: "github", Environment: "PROD"}
	p, err := reg.Resolve(ctx, key, "robot")
	require.NoError(t, err)
	assert.Equal(t, "robot", p.Type)

	stored, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "robot", stored.Type)

	types, err := refs.ListPrincipalTypes(ctx)
	require.NoError(t, err)
	names := make([]string, len(types))
	for i, pt := range types {
		names[i] = pt.Name
	}
	assert.Contains(t, names, "robot")
}

func TestRegistry_Resolve_EmptyTypeInvalid(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	_, err := reg.Resolve(context.Background(), domain.PrincipalKey{
		PrincipalID: "alice", SourceSystemID: "aws-iam", Environment: "PROD",
	}, "")
	require.Error(t, err)
	var invalid *domain.InvalidKeyError
	assert.ErrorAs(t, err, &invalid)
}

func TestRegistry_Resolve_InvalidKey(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	_, err := reg.Resolve(context.Background(), domain.PrincipalKey{
		PrincipalID: "alice", SourceSystemID: "", Environment: "PROD",
	}, "user")
	require.Error(t, err)
	var invalid *domain.InvalidKeyError
	assert.ErrorAs(t, err, &invalid)
}

func TestRegistry_Touch_ReactivatesRetiredPrincipal(t *testing.T) {
	reg, repo, _ := setupRegistry(t)
	ctx := context.Background()

	key := domain.PrincipalKey{PrincipalID: "bob", SourceSystemID: "aws-iam", Environment: "PROD"}
	p, err := reg.Resolve(ctx, key, "user")
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, p.ID, domain.StatusPendingRemoval))
	p.Status = domain.StatusPendingRemoval

	require.NoError(t, reg.Touch(ctx, p, time.Now().UTC()))
	assert.Equal(t, domain.StatusReactivated, p.Status)

	stored, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReactivated, stored.Status)
	assert.Equal(t, 0, stored.MissedRuns)
}

func TestRegistry_Touch_ActiveStaysActive(t *testing.T) {
	reg, repo, _ := setupRegistry(t)
	ctx := context.Background()

	key := domain.PrincipalKey{PrincipalID: "carol", SourceSystemID: "aws-iam", Environment: "PROD"}
	p, err := reg.Resolve(ctx, key, "user")
	require.NoError(t, err)

	require.NoError(t, reg.Touch(ctx, p, time.Now().UTC()))

	stored, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
}

func TestRegistry_MarkUnobserved_AccumulatesMisses(t *testing.T) {
	reg, _, _ := setupRegistry(t)
	ctx := context.Background()

	key := domain.PrincipalKey{PrincipalID: "dave", SourceSystemID: "aws-iam", Environment: "PROD"}
	p, err := reg.Resolve(ctx, key, "user")
	require.NoError(t, err)

	missed, err := reg.MarkUnobserved(ctx, p, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, missed)

	missed, err = reg.MarkUnobserved(ctx, p, "run-2")
	require.NoError(t, err)
	assert.Equal(t, 2, missed)

	// A touch resets the counter.
	require.NoError(t, reg.Touch(ctx, p, time.Now().UTC()))
	missed, err = reg.MarkUnobserved(ctx, p, "run-3")
	require.NoError(t, err)
	assert.Equal(t, 1, missed)
}
