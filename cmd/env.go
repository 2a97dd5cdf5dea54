package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veracity/internal/classifier"
	"github.com/sells-group/veracity/internal/inference"
	"github.com/sells-group/veracity/internal/report"
	"github.com/sells-group/veracity/internal/resilience"
	"github.com/sells-group/veracity/internal/store"
	anthropicpkg "github.com/sells-group/veracity/pkg/anthropic"
)

// appEnv holds the components shared by the subcommands.
type appEnv struct {
	Store      store.Store
	Service    *inference.Service
	Aggregator *report.Aggregator
	Writer     *report.Writer
}

// Close releases the store.
func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// initEnv validates cfg for mode and wires the store, aggregator and, for
// modes that classify, the gateway and inference service.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	w := report.NewWriter(cfg.Report.Dir)
	th := report.Thresholds{
		LowConfidence:       cfg.Report.LowConfidenceThreshold,
		HighLatency:         cfg.Report.HighLatencySecs,
		FakeSpikeMultiplier: cfg.Report.FakeSpikeMultiplier,
		LatencyAnomaly:      cfg.Report.LatencyAnomalySecs,
	}
	env := &appEnv{
		Store:      st,
		Writer:     w,
		Aggregator: report.NewAggregator(st, w, th, report.WithDriftMode(report.DriftMode(cfg.Report.DriftMode))),
	}

	if mode == "report" {
		return env, nil
	}

	gw, err := initGateway()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	env.Service = inference.NewService(gw, st, cfg.Report.LowConfidenceThreshold)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "jsonl":
		return store.NewJSONL(cfg.Store.Dir, cfg.Store.PredictionsFile, cfg.Store.CriticalCasesFile), nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = filepath.Join(cfg.Store.Dir, "veracity.db")
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initGateway() (classifier.Gateway, error) {
	c := cfg.Classifier
	policy := resilience.FromClassifierConfig(c.Provider, c)

	switch c.Provider {
	case "http":
		zap.L().Info("classifier: using model server", zap.String("base_url", c.BaseURL))
		return classifier.NewHTTPClient(c.BaseURL, time.Duration(c.TimeoutSecs)*time.Second, policy), nil
	case "anthropic":
		zap.L().Info("classifier: using anthropic", zap.String("model", c.AnthropicModel))
		client := anthropicpkg.NewClient(c.AnthropicKey)
		return classifier.NewAnthropicClassifier(client, c.AnthropicModel, policy), nil
	default:
		return nil, eris.Errorf("unsupported classifier provider: %s", c.Provider)
	}
}
