package report

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/veracity/internal/model"
	"github.com/sells-group/veracity/internal/store"
)

func newTestAggregator(t *testing.T, now time.Time, opts ...Option) (*Aggregator, *store.JSONLStore, string) {
	t.Helper()
	base := t.TempDir()
	st := store.NewJSONL(filepath.Join(base, "logs"), "predictions.jsonl", "critical_cases.jsonl")
	reportDir := filepath.Join(base, "monthly_reports")
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewAggregator(st, NewWriter(reportDir), DefaultThresholds(), opts...), st, reportDir
}

func TestAggregator_NoData(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	agg, _, reportDir := newTestAggregator(t, now)

	r, ok, err := agg.Generate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, r)

	_, statErr := os.Stat(reportDir)
	assert.True(t, os.IsNotExist(statErr), "no report should be written")
}

func TestAggregator_GeneratePersists(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	agg, st, reportDir := newTestAggregator(t, now)

	for _, label := range []model.Label{model.LabelFake, model.LabelReal, model.LabelFake} {
		rec := model.NewPredictionRecord(now.Add(-time.Hour), "t", label, 0.9, 100*time.Millisecond, 50*time.Millisecond)
		require.NoError(t, st.AppendPrediction(ctx, rec))
	}

	r, ok, err := agg.Generate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.0, r.FakeRealRatio.FakeRealRatio, 1e-9)
	assert.InDelta(t, 2.0, r.ModelDrift, 1e-9)

	_, err = os.Stat(filepath.Join(reportDir, "report_2025_06.json"))
	require.NoError(t, err)

	current, ok, err := agg.Current(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r.ServerHealth, current.ServerHealth)
	assert.Equal(t, r.FakeRealRatio, current.FakeRealRatio)
	assert.True(t, r.Timestamp.Equal(current.Timestamp.Time))
}

func TestAggregator_IdempotentExceptTimestamp(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	agg, st, _ := newTestAggregator(t, clock)
	agg.nowFunc = func() time.Time { return clock }

	require.NoError(t, st.AppendPrediction(ctx,
		model.NewPredictionRecord(clock, "t", model.LabelReal, 0.4, 2*time.Second, time.Second)))

	first, ok, err := agg.Generate(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	clock = clock.Add(time.Minute)
	second, ok, err := agg.Generate(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotEqual(t, first.Timestamp, second.Timestamp)
	second.Timestamp = first.Timestamp
	assert.Equal(t, first, second)
}

func TestAggregator_SkipsCorruptLines(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	agg, st, _ := newTestAggregator(t, now)

	require.NoError(t, st.AppendPrediction(ctx,
		model.NewPredictionRecord(now, "t", model.LabelFake, 0.9, 100*time.Millisecond, 50*time.Millisecond)))
	f, err := os.OpenFile(st.PredictionsPath(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"timestamp\": \"2025-06-01T00:0\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, ok, err := agg.Generate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, r.ServerHealth.TotalPredictions)
}

func TestAggregator_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	base := t.TempDir()
	st := store.NewJSONL(filepath.Join(base, "logs"), "p.jsonl", "c.jsonl")
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	require.NoError(t, st.AppendPrediction(ctx,
		model.NewPredictionRecord(now, "t", model.LabelFake, 0.9, 100*time.Millisecond, 50*time.Millisecond)))

	agg := NewAggregator(st, NewWriter(blocker), DefaultThresholds(), WithClock(func() time.Time { return now }))
	_, ok, err := agg.Generate(ctx)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestAggregator_DriftModeOption(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	agg, st, _ := newTestAggregator(t, now, WithDriftMode(DriftYearMonth))

	require.NoError(t, st.AppendPrediction(ctx,
		model.NewPredictionRecord(time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC), "old", model.LabelFake, 0.9, 100*time.Millisecond, 50*time.Millisecond)))
	require.NoError(t, st.AppendPrediction(ctx,
		model.NewPredictionRecord(now, "new", model.LabelReal, 0.9, 100*time.Millisecond, 50*time.Millisecond)))

	r, ok, err := agg.Generate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, r.ModelDrift)
}

// gatedStore signals entered and blocks each prediction read until release
// is closed.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Predictions(ctx context.Context) iter.Seq2[model.PredictionRecord, error] {
	inner := g.Store.Predictions(ctx)
	return func(yield func(model.PredictionRecord, error) bool) {
		g.entered <- struct{}{}
		<-g.release
		inner(yield)
	}
}

func TestAggregator_GenerateHoldsMonthLockWhileReading(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	base := t.TempDir()
	inner := store.NewJSONL(filepath.Join(base, "logs"), "predictions.jsonl", "critical_cases.jsonl")
	require.NoError(t, inner.AppendPrediction(ctx,
		model.NewPredictionRecord(now, "t", model.LabelFake, 0.9, 100*time.Millisecond, 50*time.Millisecond)))

	gated := &gatedStore{Store: inner, entered: make(chan struct{}, 1), release: make(chan struct{})}
	w := NewWriter(filepath.Join(base, "monthly_reports"))
	agg := NewAggregator(gated, w, DefaultThresholds(), WithClock(func() time.Time { return now }))

	done := make(chan error, 1)
	go func() {
		_, _, err := agg.Generate(ctx)
		done <- err
	}()

	<-gated.entered
	mu := w.lockFor(w.PathFor(now))
	assert.False(t, mu.TryLock(), "month lock must be held while the log is read")

	close(gated.release)
	require.NoError(t, <-done)

	require.True(t, mu.TryLock())
	mu.Unlock()
}
