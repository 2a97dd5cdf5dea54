package report

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veracity/internal/metrics"
	"github.com/sells-group/veracity/internal/model"
	"github.com/sells-group/veracity/internal/store"
)

// Aggregator builds and persists monthly reports from the prediction log.
type Aggregator struct {
	store      store.Store
	writer     *Writer
	thresholds Thresholds
	mode       DriftMode
	nowFunc    func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the generation clock.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.nowFunc = now }
}

// WithDriftMode selects how the previous month is matched.
func WithDriftMode(mode DriftMode) Option {
	return func(a *Aggregator) { a.mode = mode }
}

// NewAggregator creates an Aggregator reading st and writing through w.
func NewAggregator(st store.Store, w *Writer, th Thresholds, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:      st,
		writer:     w,
		thresholds: th,
		mode:       DriftCalendarMonth,
		nowFunc:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Generate summarizes every logged prediction and persists the result under
// the current month. It returns false, with no error, when the log is empty.
func (a *Aggregator) Generate(ctx context.Context) (*model.Report, bool, error) {
	now := a.nowFunc()
	unlock := a.writer.Lock(now)
	defer unlock()

	records, err := store.Collect(a.store.Predictions(ctx))
	if err != nil {
		return nil, false, eris.Wrap(err, "report: read predictions")
	}

	r, ok := Compute(records, now, a.thresholds, a.mode)
	if !ok {
		return nil, false, nil
	}

	path, err := a.writer.write(r)
	if err != nil {
		return nil, false, err
	}

	metrics.ObserveReport(r)
	zap.L().Info("report: generated",
		zap.String("path", path),
		zap.Int("total_predictions", r.ServerHealth.TotalPredictions),
		zap.Float64("model_drift", r.ModelDrift),
		zap.Strings("anomalies", r.Anomalies),
	)
	return r, true, nil
}

// Current returns the persisted report for the current month without
// regenerating it.
func (a *Aggregator) Current(_ context.Context) (*model.Report, bool, error) {
	return a.writer.Read(a.nowFunc())
}
