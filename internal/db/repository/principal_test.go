package repository

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "accessledger/internal/db"
	"accessledger/internal/domain"
)

func setupPrincipalRepo(t *testing.T) *PrincipalRepo {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	seedReference(t, writeDB)
	return NewPrincipalRepo(writeDB)
}

func newTestPrincipal(principalID, source, env string) *domain.Principal {
	return &domain.Principal{
		ID:           domain.NewID(),
		PrincipalID:  principalID,
		SourceSystem: source,
		Environment:  env,
		Type:         "user",
		Status:       domain.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestPrincipalRepo_UpsertAndGet(t *testing.T) {
	repo := setupPrincipalRepo(t)
	ctx := context.Background()

	p, err := repo.Upsert(ctx, newTestPrincipal("alice", "aws-iam", "PROD"))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "alice", p.PrincipalID)
	assert.Equal(t, domain.StatusActive, p.Status)
	assert.Equal(t, 0, p.MissedRuns)

	found, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	found, err = repo.GetByKey(ctx, domain.PrincipalKey{
		PrincipalID: "alice", SourceSystemID: "aws-iam", Environment: "PROD",
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
}

func TestPrincipalRepo_Upsert_SameKeyConverges(t *testing.T) {
	repo := setupPrincipalRepo(t)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, newTestPrincipal("alice", "aws-iam", "PROD"))
	require.NoError(t, err)

	// Second insert of the same key keeps the original row.
	second, err := repo.Upsert(ctx, newTestPrincipal("alice", "aws-iam", "PROD"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, total, err := repo.List(ctx, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestPrincipalRepo_Upsert_DistinctEnvironmentsDistinctRows(t *testing.T) {
	repo := setupPrincipalRepo(t)
	ctx := context.Background()

	prod, err := repo.Upsert(ctx, newTestPrincipal("alice", "aws-iam", "PROD"))
	require.NoError(t, err)
	staging, err := repo.Upsert(ctx, newTestPrincipal("alice", "aws-iam", "STAGING"))
	require.NoError(t, err)

	assert.NotEqual(t, prod.ID, staging.ID)
}

func TestPrincipalRepo_GetByKey_NotFound(t *testing.T) {
	repo := setupPrincipalRepo(t)

	_, err := repo.GetByKey(context.Background(), domain.PrincipalKey{
		PrincipalID: "ghost", SourceSystemID: "aws-iam", Environment: "PROD",
	})
	require.Error(t, err)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestPrincipalRepo_TouchResetsMissedRuns(t *testing.T) {
	repo := setupPrincipalRepo(t)
	ctx := context.Background()

	p, err := repo.Upsert(ctx, newTestPrincipal("bob", "aws-iam", "PROD"))
	require.NoError(t, err)

	missed, err := repo.RecordMiss(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, missed)
	missed, err = repo.RecordMiss(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, missed)

	observedAt := time.Now().UTC()
	require.NoError(t, repo.Touch(ctx, p.ID, observedAt, domain.StatusActive))

	found, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, found.MissedRuns)
	require.NotNil(t, found.LastAccessAt)
	assert.WithinDuration(t, observedAt, *found.LastAccessAt, time.Second)
}

func TestPrincipalRepo_Touch_NotFound(t *testing.T) {
	repo := setupPrincipalRepo(t)

	err := repo.Touch(context.Background(), "no-such-id", time.Now().UTC(), domain.StatusActive)
	require.Error(t, err)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestPrincipalRepo_SetStatus(t *testing.T) {
	repo := setupPrincipalRepo(t)
	ctx := context.Background()

	p, err := repo.Upsert(ctx, newTestPrincipal("carol", "aws-iam", "PROD"))
	require.NoError(t, err)

	require.NoError(t, repo.SetStatus(ctx, p.ID, domain.StatusPendingRemoval))

	found, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingRemoval, found.Status)
}

func TestPrincipalRepo_SetJiraTicket(t *testing.T) {
	repo := setupPrincipalRepo(t)
	ctx := context.Background()

	p, err := repo.Upsert(ctx, newTestPrincipal("carol", "aws-iam", "PROD"))
	require.NoError(t, err)
	require.Nil(t, p.JiraTicket)

	require.NoError(t, repo.SetJiraTicket(ctx, p.ID, "OPS-1234"))

	found, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, found.JiraTicket)
	assert.Equal(t, "OPS-1234", *found.JiraTicket)
}

func TestPrincipalRepo_ListUntouchedSince(t *testing.T) {
	repo := setupPrincipalRepo(t)
	ctx := context.Background()

	stale, err := repo.Upsert(ctx, newTestPrincipal("stale", "aws-iam", "PROD"))
	require.NoError(t, err)
	fresh, err := repo.Upsert(ctx, newTestPrincipal("fresh", "aws-iam", "PROD"))
	require.NoError(t, err)
	otherEnv, err := repo.Upsert(ctx, newTestPrincipal("stale", "aws-iam", "STAGING"))
	require.NoError(t, err)
	_ = otherEnv

	cutoff := time.Now().UTC()
	require.NoError(t, repo.Touch(ctx, fresh.ID, cutoff.Add(time.Minute), domain.StatusActive))

	untouched, err := repo.ListUntouchedSince(ctx, "PROD", cutoff, nil)
	require.NoError(t, err)
	require.Len(t, untouched, 1)
	assert.Equal(t, stale.ID, untouched[0].ID)
}

func TestPrincipalRepo_ListUntouchedSince_ExcludesFailedSources(t *testing.T) {
	repo := setupPrincipalRepo(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, newTestPrincipal("iam-user", "aws-iam", "PROD"))
	require.NoError(t, err)
	ghPrincipal, err := repo.Upsert(ctx, newTestPrincipal("gh-user", "github", "PROD"))
	require.NoError(t, err)

	untouched, err := repo.ListUntouchedSince(ctx, "PROD", time.Now().UTC(), []string{"aws-iam"})
	require.NoError(t, err)
	require.Len(t, untouched, 1)
	assert.Equal(t, ghPrincipal.ID, untouched[0].ID)
}

func TestPrincipalRepo_List_Pagination(t *testing.T) {
	repo := setupPrincipalRepo(t)
	ctx := context.Background()

	for _, name := range []string{"p1", "p2", "p3"} {
		_, err := repo.Upsert(ctx, newTestPrincipal(name, "aws-iam", "PROD"))
		require.NoError(t, err)
	}

	page1, total, err := repo.List(ctx, domain.PageRequest{MaxResults: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page1, 2)

	token := domain.NextPageToken(0, 2, total)
	require.NotEmpty(t, token)

	page2, _, err := repo.List(ctx, domain.PageRequest{MaxResults: 2, PageToken: token})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)
}
