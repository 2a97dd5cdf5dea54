package store

import (
	"context"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veracity/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore implements Store using pgxpool. Append order is the serial
// id order.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Timestamps are kept as ISO-8601 text so the writer's offset survives and
// months partition the same way as in the file logs.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS predictions (
	id                BIGSERIAL PRIMARY KEY,
	ts                TEXT NOT NULL,
	text              TEXT NOT NULL,
	prediction        TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	latency_total     DOUBLE PRECISION NOT NULL,
	latency_inference DOUBLE PRECISION NOT NULL,
	latency_server    DOUBLE PRECISION NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS critical_cases (
	id         BIGSERIAL PRIMARY KEY,
	ts         TEXT NOT NULL,
	text       TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	prediction TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) AppendPrediction(ctx context.Context, rec model.PredictionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO predictions (ts, text, prediction, confidence, latency_total, latency_inference, latency_server)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Timestamp.Format(time.RFC3339Nano), rec.Text, string(rec.Prediction),
		rec.Confidence, rec.LatencyTotal, rec.LatencyInference, rec.LatencyServer,
	)
	return eris.Wrap(err, "postgres: insert prediction")
}

func (s *PostgresStore) AppendCriticalCase(ctx context.Context, c model.CriticalCase) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO critical_cases (ts, text, confidence, prediction) VALUES ($1, $2, $3, $4)`,
		c.Timestamp.Format(time.RFC3339Nano), c.Text, c.Confidence, string(c.Prediction),
	)
	return eris.Wrap(err, "postgres: insert critical case")
}

func (s *PostgresStore) Predictions(ctx context.Context) iter.Seq2[model.PredictionRecord, error] {
	const query = `SELECT ts, text, prediction, confidence, latency_total, latency_inference, latency_server
		FROM predictions ORDER BY id`
	return queryRows(ctx, s.pool, query, func(row scannable) (model.PredictionRecord, error) {
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

func (s *PostgresStore) CriticalCases(ctx context.Context) iter.Seq2[model.CriticalCase, error] {
	const query = `SELECT ts, text, confidence, prediction FROM critical_cases ORDER BY id`
	return queryRows(ctx, s.pool, query, func(row scannable) (model.CriticalCase, error) {
		var c model.CriticalCase
		var ts, label string
		if err := row.Scan(&ts, &c.Text, &c.Confidence, &label); err != nil {
			return c, err
		}
		c.Prediction = model.Label(label)
		return c, parseInto(&c.Timestamp, ts)
	})
}

func queryRows[T any](ctx context.Context, pool Pool, query string, scan func(scannable) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := pool.Query(ctx, query)
		if err != nil {
			yield(zero, eris.Wrap(err, "postgres: query"))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scan(rows)
			if err == nil {
				if v, ok := any(rec).(validator); ok {
					err = v.Validate()
				}
			}
			if err != nil {
				zap.L().Debug("postgres: skipped unreadable row", zap.Error(err))
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, eris.Wrap(err, "postgres: iterate"))
		}
	}
}
