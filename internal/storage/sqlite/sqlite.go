package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/partscout/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS vendor_exchanges (
	id TEXT PRIMARY KEY,
	vendor TEXT NOT NULL,
	operation TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	status INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	bytes INTEGER NOT NULL,
	detected_bot BOOLEAN NOT NULL,
	detection_src TEXT,
	error TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS vendor_exchanges_vendor_created ON vendor_exchanges (vendor, created_at);
`

// New opens (creating if needed) a SQLite audit store at dsn.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// modernc serializes writers per connection; a single connection keeps
	// concurrent fetchers from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, e *storage.Exchange) error {
	query := `
	INSERT INTO vendor_exchanges (
		id, vendor, operation, method, url, status, duration_ms, bytes, detected_bot, detection_src, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := b.db.ExecContext(ctx, query,
		e.ID,
		e.Vendor,
		e.Operation,
		e.Method,
		e.URL,
		e.Status,
		e.Duration.Milliseconds(),
		e.Bytes,
		e.DetectedBot,
		e.DetectionSrc,
		e.Error,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", e.ID, err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Exchange, error) {
	query := `SELECT id, vendor, operation, method, url, status, duration_ms, bytes, detected_bot, detection_src, error, created_at FROM vendor_exchanges WHERE 1=1`
	args := []any{}

	if filter.Vendor != "" {
		query += ` AND vendor = ?`
		args = append(args, filter.Vendor)
	}
	if filter.Operation != "" {
		query += ` AND operation = ?`
		args = append(args, filter.Operation)
	}
	if filter.DetectedBot != nil {
		query += ` AND detected_bot = ?`
		args = append(args, *filter.DetectedBot)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

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
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	results := []*storage.Exchange{}
	for rows.Next() {
		var e storage.Exchange
		var durationMs int64
		var src, errText sql.NullString

		err := rows.Scan(
			&e.ID, &e.Vendor, &e.Operation, &e.Method, &e.URL, &e.Status,
			&durationMs, &e.Bytes, &e.DetectedBot, &src, &errText, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.DetectionSrc = src.String
		e.Error = errText.String
		results = append(results, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
