package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/datacleaner/pkg/result"
)

func snapshot(runID, jobName string, started time.Time) *result.AnalysisResult {
	tab := result.NewCrosstab("Column", "Weekday")
	_ = tab.Where("Column", "when").Where("Weekday", "Monday").Put(3)
	return &result.AnalysisResult{
		RunID:      runID,
		JobName:    jobName,
		Status:     result.StatusSuccess,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Results: map[string]result.AnalyzerResult{
			"count":    &result.NumberResult{Value: 7},
			"weekdays": &result.CrosstabResult{Crosstab: tab},
		},
	}
}

func TestResultStoreRoundTrip(t *testing.T) {
	blobs := NewMemoryBlobStore("results")
	store := NewResultStore(blobs, nil, nil)
	ctx := context.Background()
	snap := snapshot("run-1", "customers", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	ref, err := store.Save(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, "memory://results/results/customers/run-1/results.json", ref)

	stored, ok := blobs.Stat(ResultPath("customers", "run-1"))
	require.True(t, ok)
	assert.Equal(t, "application/json", stored.ContentType)
	assert.Equal(t, "2", stored.Metadata["result_count"])
	assert.Equal(t, "0", stored.Metadata["error_count"])
	assert.Equal(t, result.StatusSuccess, stored.Metadata["status"])

	for _, load := range []func() (*result.AnalysisResult, error){
		func() (*result.AnalysisResult, error) { return store.Load(ctx, "customers", "run-1") },
		func() (*result.AnalysisResult, error) { return store.LoadReference(ctx, ref) },
	} {
		got, err := load()
		require.NoError(t, err)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, 7.0, got.Results["count"].(*result.NumberResult).Value)
		assert.True(t, snap.Results["weekdays"].(*result.CrosstabResult).Crosstab.Equal(got.Results["weekdays"].(*result.CrosstabResult).Crosstab))
	}

	exists, err := store.Exists(ctx, "customers", "run-1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.Exists(ctx, "customers", "run-2")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Load(ctx, "customers", "run-2")
	assert.True(t, errors.Is(err, ErrBlobNotFound))
}

func TestResultStoreRejectsAnonymousSnapshot(t *testing.T) {
	store := NewResultStore(NewMemoryBlobStore("results"), nil, nil)
	_, err := store.Save(context.Background(), &result.AnalysisResult{JobName: "customers"})
	assert.Error(t, err)
}

func newRepository(t *testing.T) *RunRepository {
	t.Helper()
	repo, err := OpenRunRepository("sqlite", filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRunRepository(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := snapshot("run-1", "customers", base)
	second := snapshot("run-2", "customers", base.Add(time.Hour))
	second.Status = result.StatusFailed
	second.Errors = []string{"row 3: boom", "row 9: boom"}
	other := snapshot("run-3", "orders", base.Add(2*time.Hour))

	for _, snap := range []*result.AnalysisResult{first, second, other} {
		_, err := repo.Record(ctx, snap, "memory://results/"+snap.RunID)
		require.NoError(t, err)
	}

	rec, err := repo.Get(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, "customers", rec.JobName)
	assert.Equal(t, result.StatusFailed, rec.Status)
	assert.Equal(t, int64(1500), rec.DurationMs)
	assert.Equal(t, 2, rec.ResultCount)
	assert.Equal(t, []string{"row 3: boom", "row 9: boom"}, rec.ErrorMessages())

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	runs, err := repo.List(ctx, "customers", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)

	all, err := repo.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	latest, err := repo.Latest(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "run-3", latest.RunID)
	_, err = repo.Latest(ctx, "nothing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	deleted, err := repo.DeleteBefore(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.Record(ctx, first, "")
	require.NoError(t, err, "run ids are unique only among stored runs")
	_, err = repo.Record(ctx, first, "")
	assert.Error(t, err)
}

func TestOpenRunRepositoryRejectsUnknownDriver(t *testing.T) {
	_, err := OpenRunRepository("oracle", "", nil)
	assert.Error(t, err)
}
