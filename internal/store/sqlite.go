package store

import (
	"context"
	"database/sql"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/veracity/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Append order is
// the table rowid order.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create dir %s", dir)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS predictions (
	id                TEXT PRIMARY KEY,
	timestamp         TEXT NOT NULL,
	text              TEXT NOT NULL,
	prediction        TEXT NOT NULL,
	confidence        REAL NOT NULL,
	latency_total     REAL NOT NULL,
	latency_inference REAL NOT NULL,
	latency_server    REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS critical_cases (
	id         TEXT PRIMARY KEY,
	timestamp  TEXT NOT NULL,
	text       TEXT NOT NULL,
	confidence REAL NOT NULL,
	prediction TEXT NOT NULL
);
`

// Migrate creates the log tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendPrediction(ctx context.Context, rec model.PredictionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, timestamp, text, prediction, confidence, latency_total, latency_inference, latency_server)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.Timestamp.Format(time.RFC3339Nano), rec.Text, string(rec.Prediction),
		rec.Confidence, rec.LatencyTotal, rec.LatencyInference, rec.LatencyServer,
	)
	return eris.Wrap(err, "sqlite: insert prediction")
}

func (s *SQLiteStore) AppendCriticalCase(ctx context.Context, c model.CriticalCase) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO critical_cases (id, timestamp, text, confidence, prediction) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), c.Timestamp.Format(time.RFC3339Nano), c.Text, c.Confidence, string(c.Prediction),
	)
	return eris.Wrap(err, "sqlite: insert critical case")
}

func (s *SQLiteStore) Predictions(ctx context.Context) iter.Seq2[model.PredictionRecord, error] {
	const query = `SELECT timestamp, text, prediction, confidence, latency_total, latency_inference, latency_server
		FROM predictions ORDER BY rowid`
	return queryAll(ctx, s.db, query, func(row scannable) (model.PredictionRecord, error) {
		var rec model.PredictionRecord
		var ts, label string
		if err := row.Scan(&ts, &rec.Text, &label, &rec.Confidence,
			&rec.LatencyTotal, &rec.LatencyInference, &rec.LatencyServer); err != nil {
			return rec, err
		}
		rec.Prediction = model.Label(label)
		return rec, parseInto(&rec.Timestamp, ts)
	})
}

func (s *SQLiteStore) CriticalCases(ctx context.Context) iter.Seq2[model.CriticalCase, error] {
	const query = `SELECT timestamp, text, confidence, prediction FROM critical_cases ORDER BY rowid`
	return queryAll(ctx, s.db, query, func(row scannable) (model.CriticalCase, error) {
		var c model.CriticalCase
		var ts, label string
		if err := row.Scan(&ts, &c.Text, &c.Confidence, &label); err != nil {
			return c, err
		}
		c.Prediction = model.Label(label)
		return c, parseInto(&c.Timestamp, ts)
	})
}

type scannable interface {
	Scan(dest ...any) error
}

// queryAll runs query on every iteration and yields scanned rows in order.
// Rows that fail to scan or validate are skipped.
func queryAll[T any](ctx context.Context, db *sql.DB, query string, scan func(scannable) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			yield(zero, eris.Wrap(err, "sqlite: query"))
			return
		}
		defer rows.Close() //nolint:errcheck

		for rows.Next() {
			rec, err := scan(rows)
			if err == nil {
				if v, ok := any(rec).(validator); ok {
					err = v.Validate()
				}
			}
			if err != nil {
				zap.L().Debug("sqlite: skipped unreadable row", zap.Error(err))
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, eris.Wrap(err, "sqlite: iterate"))
		}
	}
}

func parseInto(dst *model.Timestamp, s string) error {
	t, err := model.ParseTimestamp(s)
	if err != nil {
		return err
	}
	dst.Time = t
	return nil
}
