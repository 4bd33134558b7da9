package sqlite

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/czds-fetch/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Ping())
	require.NoError(t, store.CreateRun(&domain.BatchRun{}))
	require.NoError(t, store.Close())

	// Migrations must be repeatable
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestHistory_RunLifecycle(t *testing.T) {
	store := openTestStore(t)

	run := &domain.BatchRun{}
	require.NoError(t, store.CreateRun(run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.StartedAt.IsZero())

	result := &domain.BatchResult{Outcomes: []domain.ItemOutcome{
		{Zone: "com", Source: domain.SourceExplicit, File: &domain.DownloadedFile{
			Zone: "com", Name: "com.txt.gz", Path: "/zones/com.txt.gz", Size: 2048, Elapsed: 1500 * time.Millisecond,
		}},
		{Zone: "xyz", Source: domain.SourceExplicit, Err: domain.ErrAuthorizationDenied},
	}}

	for _, o := range result.Outcomes {
		require.NoError(t, store.RecordOutcome(domain.NewOutcomeRecord(run.ID, o)))
	}

	run.Finish(result, nil)
	require.NoError(t, store.FinishRun(run))

	runs, err := store.ListRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, 2, got.Requested)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.FinishedAt)
	assert.WithinDuration(t, *run.FinishedAt, *got.FinishedAt, time.Second)

	records, err := store.ListOutcomes(run.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "com", records[0].Zone)
	assert.Equal(t, "explicit", records[0].Source)
	assert.Equal(t, "com.txt.gz", records[0].FileName)
	assert.Equal(t, int64(2048), records[0].Size)
	assert.Equal(t, int64(1500), records[0].ElapsedMs)
	assert.True(t, records[0].OK())

	assert.Equal(t, "xyz", records[1].Zone)
	assert.Equal(t, domain.KindAuthorizationDenied, records[1].ErrorKind)
	assert.Contains(t, records[1].ErrorMessage, "not authorized")
	assert.False(t, records[1].OK())
}

func TestHistory_FailedRun(t *testing.T) {
	store := openTestStore(t)

	run := &domain.BatchRun{}
	require.NoError(t, store.CreateRun(run))

	batchErr := domain.NewBatchError(domain.StageAuthenticate, fmt.Errorf("%w: invalid username or password", domain.ErrAuthentication))
	run.Finish(nil, batchErr)
	require.NoError(t, store.FinishRun(run))

	runs, err := store.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, batchErr.Error(), runs[0].Error)
	assert.Zero(t, runs[0].Requested)
}

func TestHistory_FinishUnknownRun(t *testing.T) {
	store := openTestStore(t)

	now := time.Now()
	err := store.FinishRun(&domain.BatchRun{ID: "missing", FinishedAt: &now})
	assert.Error(t, err)
}

func TestHistory_ListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := range 5 {
		run := &domain.BatchRun{StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, store.CreateRun(run))
		ids = append(ids, run.ID)
	}

	runs, err := store.ListRuns(3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[4], runs[0].ID)
	assert.Equal(t, ids[3], runs[1].ID)
	assert.Equal(t, ids[2], runs[2].ID)
	assert.Nil(t, runs[0].FinishedAt)
}

func TestHistory_LastSuccess(t *testing.T) {
	store := openTestStore(t)

	missing, err := store.LastSuccess("com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	for i, size := range []int64{100, 200} {
		run := &domain.BatchRun{}
		require.NoError(t, store.CreateRun(run))
		require.NoError(t, store.RecordOutcome(domain.NewOutcomeRecord(run.ID, domain.ItemOutcome{
			Zone: "com",
			File: &domain.DownloadedFile{Zone: "com", Name: fmt.Sprintf("com-%d.txt.gz", i), Size: size},
		})))
		require.NoError(t, store.RecordOutcome(domain.NewOutcomeRecord(run.ID, domain.ItemOutcome{
			Zone: "com",
			Err:  errors.New("connection reset"),
		})))
	}

	last, err := store.LastSuccess("com")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(200), last.Size)
	assert.Equal(t, "com-1.txt.gz", last.FileName)
}

func TestHistory_OutcomeNeedsRun(t *testing.T) {
	store := openTestStore(t)

	err := store.RecordOutcome(domain.NewOutcomeRecord("no-such-run", domain.ItemOutcome{Zone: "com", Err: domain.ErrNetwork}))
	assert.Error(t, err)
}
