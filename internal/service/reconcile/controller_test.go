package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessledger/internal/adapter"
	internaldb "accessledger/internal/db"
	"accessledger/internal/db/repository"
	"accessledger/internal/domain"
	"accessledger/internal/service/registry"
)

// stubAdapter yields fixed facts, or fails, or blocks until cancelled.
type stubAdapter struct {
	id    string
	facts []domain.RawFact
	fail  bool
	block bool
}

func (s *stubAdapter) SourceSystemID() string { return s.id }

func (s *stubAdapter) FetchAccessFacts(ctx context.Context, environmentCode string) ([]domain.RawFact, error) {
	if s.block {
		<-ctx.Done()
		return nil, &domain.AdapterError{SourceSystemID: s.id, Err: ctx.Err()}
	}
	if s.fail {
		return nil, &domain.AdapterError{SourceSystemID: s.id, Err: errors.New("enumeration failed")}
	}
	return s.facts, nil
}

var _ adapter.SourceAdapter = (*stubAdapter)(nil)

type controllerEnv struct {
	controller *Controller
	runs       *repository.RunRepo
	matrix     *repository.MatrixRepo
	principals *repository.PrincipalRepo
	db         *sql.DB
}

func setupController(t *testing.T, adapters ...adapter.SourceAdapter) *controllerEnv {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	seedReference(t, writeDB)

	runs := repository.NewRunRepo(writeDB)
	matrix := repository.NewMatrixRepo(writeDB)
	principals := repository.NewPrincipalRepo(writeDB)
	reg := registry.New(principals, repository.NewReferenceRepo(writeDB), nil)
	rec := NewReconciler(reg, domain.DefaultAccessLevelOrder(), nil)

	return &controllerEnv{
		controller: NewController(runs, matrix, rec, nil, adapters, nil),
		runs:       runs,
		matrix:     matrix,
		principals: principals,
		db:         writeDB,
	}
}

func TestController_Execute_ClosesCleanRun(t *testing.T) {
	env := setupController(t,
		&stubAdapter{id: "aws-iam", facts: []domain.RawFact{
			{PrincipalID: "alice", PrincipalType: "user", Service: "s3", AccessLevel: "write"},
			{PrincipalID: "bob", PrincipalType: "user", Service: "ec2", AccessLevel: "read"},
		}},
		&stubAdapter{id: "github", facts: []domain.RawFact{
			{PrincipalID: "alice", PrincipalType: "user", Service: "repo", AccessLevel: "admin"},
		}},
	)
	ctx := context.Background()

	run, err := env.controller.Execute(ctx, "PROD", domain.TriggerTypeManual, "tester", "first run")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusClosed, run.Status)
	assert.Empty(t, run.FailedSources)
	require.NotNil(t, run.FinishedAt)

	snapshot, err := env.matrix.SnapshotByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, snapshot, 3)

	stored, err := env.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusClosed, stored.Status)
}

func TestController_Execute_FailedSourceClosesPartial(t *testing.T) {
	env := setupController(t,
		&stubAdapter{id: "aws-iam", facts: []domain.RawFact{
			{PrincipalID: "alice", PrincipalType: "user", Service: "s3", AccessLevel: "read"},
		}},
		&stubAdapter{id: "github", fail: true},
	)
	ctx := context.Background()

	run, err := env.controller.Execute(ctx, "PROD", domain.TriggerTypeManual, "tester", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusClosedPartial, run.Status)
	assert.Equal(t, []string{"github"}, run.FailedSources)
	assert.Contains(t, run.Description, "github")

	// Facts from the surviving source are retained.
	snapshot, err := env.matrix.SnapshotByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "alice", snapshot[0].PrincipalID)
}

func TestController_Execute_EmptyAdapterOutputIsValid(t *testing.T) {
	env := setupController(t, &stubAdapter{id: "aws-iam"})
	ctx := context.Background()

	run, err := env.controller.Execute(ctx, "PROD", domain.TriggerTypeManual, "tester", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusClosed, run.Status)

	snapshot, err := env.matrix.SnapshotByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestController_Execute_CancelledRunStillClosesPartial(t *testing.T) {
	env := setupController(t,
		&stubAdapter{id: "aws-iam", facts: []domain.RawFact{
			{PrincipalID: "alice", PrincipalType: "user", Service: "s3", AccessLevel: "read"},
		}},
		&stubAdapter{id: "github", block: true},
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	run, err := env.controller.Execute(ctx, "PROD", domain.TriggerTypeManual, "tester", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusClosedPartial, run.Status)
	assert.Contains(t, run.FailedSources, "github")

	// The run is durably closed despite the cancelled trigger context.
	stored, err := env.runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsClosed())
}

func TestController_Cancel_AbortsInflightRun(t *testing.T) {
	env := setupController(t, &stubAdapter{id: "github", block: true})

	type result struct {
		run *domain.Run
		err error
	}
	done := make(chan result, 1)
	go func() {
		run, err := env.controller.Execute(context.Background(), "PROD", domain.TriggerTypeManual, "tester", "")
		done <- result{run, err}
	}()

	// Wait for the run to appear, then cancel it by ID.
	var runID string
	require.Eventually(t, func() bool {
		runs, _, err := env.runs.List(context.Background(), domain.PageRequest{})
		if err != nil || len(runs) == 0 {
			return false
		}
		runID = runs[0].ID
		return env.controller.Cancel(runID) == nil
	}, 5*time.Second, 10*time.Millisecond)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, domain.RunStatusClosedPartial, res.run.Status)
	assert.Contains(t, res.run.FailedSources, "github")
}

func TestController_Execute_UnseededTypeDoesNotAbortRun(t *testing.T) {
	env := setupController(t,
		&stubAdapter{id: "aws-iam", facts: []domain.RawFact{
			{PrincipalID: "alice", PrincipalType: "user", Service: "s3", AccessLevel: "write"},
		}},
		&stubAdapter{id: "github", facts: []domain.RawFact{
			{PrincipalID: "bot-1", PrincipalType: "robot", Service: "repo", AccessLevel: "read"},
		}},
	)
	ctx := context.Background()

	// "robot" is not a seeded type; the run must still close clean with
	// both sources' facts intact.
	run, err := env.controller.Execute(ctx, "PROD", domain.TriggerTypeManual, "tester", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusClosed, run.Status)
	assert.Empty(t, run.FailedSources)

	snapshot, err := env.matrix.SnapshotByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	for _, e := range snapshot {
		assert.False(t, e.Degraded)
		assert.NotNil(t, e.PrincipalRef)
	}
}

// failingMatrixRepo rejects every snapshot write.
type failingMatrixRepo struct {
	domain.MatrixRepository
}

func (f *failingMatrixRepo) InsertBatch(ctx context.Context, entries []domain.MatrixEntry) error {
	return errors.New("disk full")
}

func TestController_Execute_SnapshotWriteFailureClosesPartial(t *testing.T) {
	env := setupController(t)
	ctx := context.Background()

	reg := registry.New(env.principals, repository.NewReferenceRepo(env.db), nil)
	rec := NewReconciler(reg, domain.DefaultAccessLevelOrder(), nil)
	broken := NewController(env.runs, &failingMatrixRepo{env.matrix}, rec, nil,
		[]adapter.SourceAdapter{&stubAdapter{id: "aws-iam", facts: []domain.RawFact{
			{PrincipalID: "alice", PrincipalType: "user", Service: "s3", AccessLevel: "read"},
		}}}, nil)

	run, err := broken.Execute(ctx, "PROD", domain.TriggerTypeManual, "tester", "")
	require.Error(t, err)
	require.Nil(t, run)

	// The aborted run must not read as a clean empty snapshot.
	runs, _, err := env.runs.List(ctx, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusClosedPartial, runs[0].Status)
	assert.Contains(t, runs[0].Description, "snapshot write failed")
}

func TestController_Cancel_UnknownRun(t *testing.T) {
	env := setupController(t)

	err := env.controller.Cancel("no-such-run")
	require.Error(t, err)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
