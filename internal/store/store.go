// Package store persists prediction and critical-case logs.
package store

import (
	"context"
	"iter"

	"github.com/sells-group/veracity/internal/model"
)

// Store is the append-only persistence interface for classification events.
//
// The read methods return lazy, restartable sequences: every call starts
// again from the first record. A store with nothing written yet yields an
// empty sequence. Malformed records are skipped; only I/O failures are
// yielded as errors.
type Store interface {
	AppendPrediction(ctx context.Context, rec model.PredictionRecord) error
	AppendCriticalCase(ctx context.Context, c model.CriticalCase) error

	Predictions(ctx context.Context) iter.Seq2[model.PredictionRecord, error]
	CriticalCases(ctx context.Context) iter.Seq2[model.CriticalCase, error]

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
