package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/partscout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS vendor_exchanges (
	id TEXT PRIMARY KEY,
	vendor TEXT NOT NULL,
	operation TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	status INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	bytes BIGINT NOT NULL,
	detected_bot BOOLEAN NOT NULL,
	detection_src TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS vendor_exchanges_vendor_created ON vendor_exchanges (vendor, created_at DESC);
`

// New connects to dsn and ensures the audit table exists.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}
	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, e *storage.Exchange) error {
	query := `
	INSERT INTO vendor_exchanges (
		id, vendor, operation, method, url, status, duration_ms, bytes, detected_bot, detection_src, error, created_at
	) VALUES (@id, @vendor, @operation, @method, @url, @status, @duration_ms, @bytes, @detected_bot, @detection_src, @error, @created_at)
	`
	_, err := b.pool.Exec(ctx, query, pgx.NamedArgs{
		"id":            e.ID,
		"vendor":        e.Vendor,
		"operation":     e.Operation,
		"method":        e.Method,
		"url":           e.URL,
		"status":        e.Status,
		"duration_ms":   e.Duration.Milliseconds(),
		"bytes":         e.Bytes,
		"detected_bot":  e.DetectedBot,
		"detection_src": e.DetectionSrc,
		"error":         e.Error,
		"created_at":    e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", e.ID, err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Exchange, error) {
	query := `SELECT id, vendor, operation, method, url, status, duration_ms, bytes, detected_bot, detection_src, error, created_at FROM vendor_exchanges WHERE 1=1`
	args := pgx.NamedArgs{}

	if filter.Vendor != "" {
		query += ` AND vendor = @vendor`
		args["vendor"] = filter.Vendor
	}
	if filter.Operation != "" {
		query += ` AND operation = @operation`
		args["operation"] = filter.Operation
	}
	if filter.DetectedBot != nil {
		query += ` AND detected_bot = @detected_bot`
		args["detected_bot"] = *filter.DetectedBot
	}
	if filter.Since != nil {
		query += ` AND created_at >= @since`
		args["since"] = *filter.Since
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT @limit`
		args["limit"] = filter.Limit
	}
	if filter.Offset > 0 {
		query += ` OFFSET @offset`
		args["offset"] = filter.Offset
	}

	rows, err := b.pool.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.Exchange, error) {
		var e storage.Exchange
		var durationMs int64
		err := row.Scan(
			&e.ID, &e.Vendor, &e.Operation, &e.Method, &e.URL, &e.Status,
			&durationMs, &e.Bytes, &e.DetectedBot, &e.DetectionSrc, &e.Error, &e.CreatedAt,
		)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan: %w", err)
	}
	if results == nil {
		results = []*storage.Exchange{}
	}
	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
