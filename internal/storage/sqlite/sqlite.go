package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/codescout/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS fetch_records (
	id TEXT PRIMARY KEY,
	stage TEXT NOT NULL,
	url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	bytes INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	detected_bot BOOLEAN NOT NULL,
	detection_src TEXT,
	created_at DATETIME NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS fetch_records_created_at ON fetch_records (created_at);
`

// busyTimeout makes a locked database wait instead of failing with
// SQLITE_BUSY.
const busyTimeout = "_pragma=busy_timeout(5000)"

// New creates a new SQLite-backed storage.Backend. dsn is a file path,
// optionally with query parameters. Writes from concurrent fetches are
// serialized over a single connection.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", withBusyTimeout(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, r *storage.FetchRecord) error {
	query := `
	INSERT INTO fetch_records (
		id, stage, url, status_code, bytes, duration_ms, outcome, detected_bot, detection_src, created_at, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
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

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.FetchRecord, error) {
	query := `SELECT id, stage, url, status_code, bytes, duration_ms, outcome, detected_bot, detection_src, created_at, error FROM fetch_records WHERE 1=1`
	args := []any{}

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	// SQLite only accepts OFFSET after LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fetch records: %w", err)
	}
	defer rows.Close()

	var records []*storage.FetchRecord
	for rows.Next() {
		var r storage.FetchRecord
		var stage, outcome string
		var durationMs int64
		var detectionSrc, errText sql.NullString

		err := rows.Scan(
			&r.ID, &stage, &r.URL, &r.StatusCode, &r.Bytes, &durationMs,
			&outcome, &r.DetectedBot, &detectionSrc, &r.CreatedAt, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fetch record: %w", err)
		}

		r.Stage = storage.Stage(stage)
		r.Outcome = storage.Outcome(outcome)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.DetectionSrc = detectionSrc.String
		r.Error = errText.String
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fetch records: %w", err)
	}

	return records, nil
}

func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + busyTimeout
	}
	return dsn + "?" + busyTimeout
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
