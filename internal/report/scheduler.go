package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/veracity/internal/config"
)

// Scheduler regenerates the monthly report in the background.
type Scheduler struct {
	aggregator *Aggregator
	alerter    *Alerter
	cfg        config.ScheduleConfig
}

// NewScheduler creates a background report scheduler. alerter may be nil.
func NewScheduler(aggregator *Aggregator, alerter *Alerter, cfg config.ScheduleConfig) *Scheduler {
	return &Scheduler{
		aggregator: aggregator,
		alerter:    alerter,
		cfg:        cfg,
	}
}

// Run regenerates the report on every tick. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalMins) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	log := zap.L().With(zap.String("component", "report.scheduler"))
	log.Info("starting report scheduler", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("report scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, log)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, log *zap.Logger) {
	r, ok, err := s.aggregator.Generate(ctx)
	if err != nil {
		log.Error("report: scheduled generation failed", zap.Error(err))
		return
	}
	if !ok {
		log.Debug("report: no predictions logged yet")
		return
	}
	if s.alerter == nil || len(r.Anomalies) == 0 {
		return
	}

	sent := s.alerter.SendAlerts(ctx, s.alerter.Evaluate(r))
	log.Info("report: anomaly alerts dispatched",
		zap.Int("anomalies", len(r.Anomalies)),
		zap.Int("alerts_sent", sent),
	)
}
