// Package inference classifies text and logs every prediction.
package inference

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veracity/internal/classifier"
	"github.com/sells-group/veracity/internal/metrics"
	"github.com/sells-group/veracity/internal/model"
	"github.com/sells-group/veracity/internal/store"
)

// ErrEmptyText is returned for blank input.
var ErrEmptyText = eris.New("inference: text is empty")

// GatewayError wraps a classification backend failure.
type GatewayError struct{ Err error }

func (e *GatewayError) Error() string { return e.Err.Error() }
func (e *GatewayError) Unwrap() error { return e.Err }

// PersistError wraps a failure to append to the prediction or critical-case log.
type PersistError struct{ Err error }

func (e *PersistError) Error() string { return e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }

// Input is one classification request.
type Input struct {
	Text string
	// ReceivedAt marks request arrival; total latency is measured from it.
	// Zero means "now".
	ReceivedAt time.Time
}

// Probabilities are the per-class scores of a result.
type Probabilities struct {
	Fake float64 `json:"fake"`
	Real float64 `json:"real"`
}

// Latency is the per-stage timing of a result, in seconds.
type Latency struct {
	Total     float64 `json:"total"`
	Inference float64 `json:"inference"`
	Server    float64 `json:"server"`
}

// Result is the answer to a classification request.
type Result struct {
	Prediction    model.Label     `json:"prediction"`
	Confidence    float64         `json:"confidence"`
	Probabilities Probabilities   `json:"probabilities"`
	Latency       Latency         `json:"latency"`
	Timestamp     model.Timestamp `json:"timestamp"`
	Critical      bool            `json:"critical"`
}

// Service runs the gateway and records its predictions.
type Service struct {
	gateway       classifier.Gateway
	store         store.Store
	lowConfidence float64
	nowFunc       func() time.Time
}

// NewService creates a Service. Predictions with confidence below
// lowConfidence are also logged as critical cases.
func NewService(gw classifier.Gateway, st store.Store, lowConfidence float64) *Service {
	return &Service{gateway: gw, store: st, lowConfidence: lowConfidence, nowFunc: time.Now}
}

// Predict classifies in.Text and appends the prediction to the log.
func (s *Service) Predict(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyText
	}
	start := in.ReceivedAt
	if start.IsZero() {
		start = s.nowFunc()
	}

	infStart := s.nowFunc()
	pred, err := s.gateway.Classify(ctx, in.Text)
	end := s.nowFunc()
	if err != nil {
		metrics.ClassifierErrors.Inc()
		return nil, &GatewayError{Err: eris.Wrap(err, "inference: classify")}
	}
	if err := pred.Validate(); err != nil {
		metrics.ClassifierErrors.Inc()
		return nil, &GatewayError{Err: err}
	}

	inference := max(end.Sub(infStart), 0)
	total := max(end.Sub(start), inference)

	rec := model.NewPredictionRecord(end, in.Text, pred.Label, pred.Confidence(), total, inference)
	if err := s.store.AppendPrediction(ctx, rec); err != nil {
		return nil, &PersistError{Err: eris.Wrap(err, "inference: log prediction")}
	}

	critical := rec.Confidence < s.lowConfidence
	if critical {
		if err := s.store.AppendCriticalCase(ctx, model.CriticalCaseFrom(rec)); err != nil {
			return nil, &PersistError{Err: eris.Wrap(err, "inference: log critical case")}
		}
	}

	metrics.ObservePrediction(rec, critical)
	zap.L().Debug("inference: prediction logged",
		zap.String("prediction", string(rec.Prediction)),
		zap.Float64("confidence", rec.Confidence),
		zap.Float64("latency_total", rec.LatencyTotal),
		zap.Bool("critical", critical),
	)

	return &Result{
		Prediction:    rec.Prediction,
		Confidence:    rec.Confidence,
		Probabilities: Probabilities{Fake: pred.Fake(), Real: pred.Real()},
		Latency: Latency{
			Total:     rec.LatencyTotal,
			Inference: rec.LatencyInference,
			Server:    rec.LatencyServer,
		},
		Timestamp: rec.Timestamp,
		Critical:  critical,
	}, nil
}
