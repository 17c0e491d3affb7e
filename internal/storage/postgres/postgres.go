package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/codescout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS fetch_records (
	id TEXT PRIMARY KEY,
	stage TEXT NOT NULL,
	url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	bytes BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL,
	outcome TEXT NOT NULL,
	detected_bot BOOLEAN NOT NULL,
	detection_src TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS fetch_records_created_at ON fetch_records (created_at);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, r *storage.FetchRecord) error {
	query := `
	INSERT INTO fetch_records (
		id, stage, url, status_code, bytes, duration_ms, outcome, detected_bot, detection_src, created_at, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := b.pool.Exec(ctx, query,
		r.ID,
		string(r.Stage),
		r.URL,
		r.StatusCode,
		r.Bytes,
		r.Duration.Milliseconds(),
		string(r.Outcome),
		r.DetectedBot,
		r.DetectionSrc,
		r.CreatedAt,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("insert fetch record: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.FetchRecord, error) {
	query := `SELECT id, stage, url, status_code, bytes, duration_ms, outcome, detected_bot, detection_src, created_at, error FROM fetch_records WHERE 1=1`
	args := []any{}

	// Placeholders are numbered, so each clause takes the next $n.
	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}

	if filter.Stage != "" {
		add(` AND stage = $%d`, string(filter.Stage))
	}
	if filter.URL != "" {
		add(` AND url = $%d`, filter.URL)
	}
	if filter.Outcome != "" {
		add(` AND outcome = $%d`, string(filter.Outcome))
	}
	if filter.Since != nil {
		add(` AND created_at >= $%d`, *filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		add(` LIMIT $%d`, filter.Limit)
	}
	if filter.Offset > 0 {
		add(` OFFSET $%d`, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fetch records: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.FetchRecord, error) {
		var r storage.FetchRecord
		var stage, outcome string
		var durationMs int64
		if err := row.Scan(
			&r.ID, &stage, &r.URL, &r.StatusCode, &r.Bytes, &durationMs,
			&outcome, &r.DetectedBot, &r.DetectionSrc, &r.CreatedAt, &r.Error,
		); err != nil {
			return nil, err
		}
		r.Stage = storage.Stage(stage)
		r.Outcome = storage.Outcome(outcome)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		return &r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan fetch records: %w", err)
	}

	return records, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
