package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RunLogStore {
	t.Helper()
	store, err := NewRunLogStore(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveRunAndRecentRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, RunRecord{
		TraceID:   "t-1",
		UserID:    "u-1",
		Goal:      "grow steadily",
		Narrative: "first run",
		CreatedAt: 1000,
		Recommendations: []RecommendationRecord{
			{Symbol: "BTCUSDT", Action: "BUY", OriginalAction: "做多", Quantity: 0.002, Leverage: 3, Price: 50000, Confidence: 0.7, Reason: "momentum"},
		},
	}))
	require.NoError(t, store.SaveRun(ctx, RunRecord{
		TraceID:   "t-2",
		Goal:      "reduce risk",
		Narrative: "second run",
		CreatedAt: 2000,
	}))

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// 按时间倒序。
	assert.Equal(t, "t-2", runs[0].TraceID)
	assert.Equal(t, "t-1", runs[1].TraceID)
	assert.Equal(t, "first run", runs[1].Narrative)
	assert.Equal(t, int64(2000), runs[0].CreatedAt)
}

func TestSaveRun_RequiresTraceID(t *testing.T) {
	store := newTestStore(t)
	err := store.SaveRun(context.Background(), RunRecord{Goal: "g"})
	assert.Error(t, err)
}

func TestSaveRun_DuplicateTraceIDFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, RunRecord{TraceID: "dup"}))
	assert.Error(t, store.SaveRun(ctx, RunRecord{TraceID: "dup"}))
}

func TestRecentRuns_LimitApplied(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveRun(ctx, RunRecord{
			TraceID:   string(rune('a' + i)),
			CreatedAt: int64(i + 1),
		}))
	}
	runs, err := store.RecentRuns(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestClose_Idempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
