package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Label is the classifier verdict for a piece of text.
type Label string

const (
	LabelFake Label = "fake"
	LabelReal Label = "real"
)

// ErrUnknownLabel is returned when a label is neither fake nor real.
var ErrUnknownLabel = eris.New("model: unknown label")

// ParseLabel normalizes s into a Label.
func ParseLabel(s string) (Label, error) {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelFake:
		return LabelFake, nil
	case LabelReal:
		return LabelReal, nil
	default:
		return "", eris.Wrapf(ErrUnknownLabel, "label %q", s)
	}
}

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	return l == LabelFake || l == LabelReal
}

// PredictionRecord is one classification event in the prediction log.
// Latencies are in seconds.
type PredictionRecord struct {
	Timestamp        Timestamp `json:"timestamp"`
	Text             string    `json:"text"`
	Prediction       Label     `json:"prediction"`
	Confidence       float64   `json:"confidence"`
	LatencyTotal     float64   `json:"latency_total"`
	LatencyInference float64   `json:"latency_inference"`
	LatencyServer    float64   `json:"latency_server"`
}

// NewPredictionRecord builds a record stamped at now. The server latency is
// derived as total minus inference.
func NewPredictionRecord(now time.Time, text string, label Label, confidence float64, total, inference time.Duration) PredictionRecord {
	return PredictionRecord{
		Timestamp:        Timestamp{Time: now},
		Text:             text,
		Prediction:       label,
		Confidence:       confidence,
		LatencyTotal:     total.Seconds(),
		LatencyInference: inference.Seconds(),
		LatencyServer:    (total - inference).Seconds(),
	}
}

// Validate rejects records that cannot take part in aggregation.
func (r PredictionRecord) Validate() error {
	if !r.Prediction.Valid() {
		return eris.Wrapf(ErrUnknownLabel, "prediction %q", r.Prediction)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return eris.Errorf("model: confidence %v out of range", r.Confidence)
	}
	if r.Timestamp.IsZero() {
		return eris.New("model: missing timestamp")
	}
	return nil
}

// CriticalCase is a low-confidence prediction kept for manual review.
type CriticalCase struct {
	Timestamp  Timestamp `json:"timestamp"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Prediction Label     `json:"prediction"`
}

// CriticalCaseFrom copies the reviewable fields of a prediction.
func CriticalCaseFrom(r PredictionRecord) CriticalCase {
	return CriticalCase{
		Timestamp:  r.Timestamp,
		Text:       r.Text,
		Confidence: r.Confidence,
		Prediction: r.Prediction,
	}
}

// Validate rejects critical cases with an unknown label.
func (c CriticalCase) Validate() error {
	if !c.Prediction.Valid() {
		return eris.Wrapf(ErrUnknownLabel, "prediction %q", c.Prediction)
	}
	if c.Timestamp.IsZero() {
		return eris.New("model: missing timestamp")
	}
	return nil
}
