package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/veracity/internal/model"
)

// JSONLStore implements Store with one JSON-lines file per log.
type JSONLStore struct {
	predictions *jsonlFile[model.PredictionRecord]
	cases       *jsonlFile[model.CriticalCase]
}

// NewJSONL creates a store writing predictionsFile and casesFile under dir.
// Files and dir are created on first append.
func NewJSONL(dir, predictionsFile, casesFile string) *JSONLStore {
	return &JSONLStore{
		predictions: &jsonlFile[model.PredictionRecord]{path: filepath.Join(dir, predictionsFile)},
		cases:       &jsonlFile[model.CriticalCase]{path: filepath.Join(dir, casesFile)},
	}
}

func (s *JSONLStore) AppendPrediction(ctx context.Context, rec model.PredictionRecord) error {
	return s.predictions.append(ctx, rec)
}

func (s *JSONLStore) AppendCriticalCase(ctx context.Context, c model.CriticalCase) error {
	return s.cases.append(ctx, c)
}

func (s *JSONLStore) Predictions(ctx context.Context) iter.Seq2[model.PredictionRecord, error] {
	return s.predictions.all(ctx)
}

func (s *JSONLStore) CriticalCases(ctx context.Context) iter.Seq2[model.CriticalCase, error] {
	return s.cases.all(ctx)
}

// PredictionsPath returns the prediction log location.
func (s *JSONLStore) PredictionsPath() string { return s.predictions.path }

// CriticalCasesPath returns the critical-case log location.
func (s *JSONLStore) CriticalCasesPath() string { return s.cases.path }

// Migrate is a no-op; files are created on first append.
func (s *JSONLStore) Migrate(context.Context) error { return nil }

func (s *JSONLStore) Close() error { return nil }

// jsonlFile is an append-only file holding one JSON object per line.
type jsonlFile[T any] struct {
	path string
	mu   sync.Mutex
}

// append writes rec as a single line. The whole line goes out in one write
// on an O_APPEND descriptor, so concurrent writers only interleave at line
// boundaries.
func (f *jsonlFile[T]) append(ctx context.Context, rec T) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "jsonl: append")
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "jsonl: marshal record")
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return eris.Wrapf(err, "jsonl: create dir for %s", f.path)
	}
	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "jsonl: open %s", f.path)
	}
	if _, err := fh.Write(line); err != nil {
		fh.Close() //nolint:errcheck
		return eris.Wrapf(err, "jsonl: write %s", f.path)
	}
	if err := fh.Close(); err != nil {
		return eris.Wrapf(err, "jsonl: close %s", f.path)
	}
	return nil
}

// all streams every record from the start of the file.
func (f *jsonlFile[T]) all(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		fh, err := os.Open(f.path)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield(zero, eris.Wrapf(err, "jsonl: open %s", f.path))
			return
		}
		defer fh.Close() //nolint:errcheck

		r := bufio.NewReaderSize(fh, 64*1024)
		for {
			if err := ctx.Err(); err != nil {
				yield(zero, eris.Wrap(err, "jsonl: read cancelled"))
				return
			}

			line, readErr := r.ReadBytes('\n')
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				more := decodeLine(trimmed, func(rec T) bool {
					return yield(rec, nil)
				})
				if !more {
					return
				}
			}

			if errors.Is(readErr, io.EOF) {
				return
			}
			if readErr != nil {
				yield(zero, eris.Wrapf(readErr, "jsonl: read %s", f.path))
				return
			}
		}
	}
}
