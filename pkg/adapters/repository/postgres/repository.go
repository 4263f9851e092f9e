package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS qr_scans (
	           id BIGSERIAL PRIMARY KEY,
	     event_id TEXT UNIQUE,
	           ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	         slug TEXT NOT NULL,
	         dest TEXT NOT NULL DEFAULT '',
	 ip_truncated TEXT NOT NULL DEFAULT '',
	           ua TEXT NOT NULL DEFAULT '',
	          ref TEXT NOT NULL DEFAULT '',
	      country TEXT NOT NULL DEFAULT '',
	       region TEXT NOT NULL DEFAULT '',
	         city TEXT NOT NULL DEFAULT '',
	       method TEXT NOT NULL DEFAULT '')`,
	`CREATE INDEX IF NOT EXISTS idx_qr_scans_ts ON qr_scans(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_qr_scans_slug_ts ON qr_scans(slug, ts)`,
}

// PostgresRepository stores the scan event log in PostgreSQL and answers the
// dashboard aggregation with the database's own timezone rules.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	timezone string
	now      func() time.Time
}

type Option func(*PostgresRepository)

// WithTimezone sets the IANA zone that anchors day boundaries in Aggregate.
func WithTimezone(tz string) Option {
	return func(r *PostgresRepository) {
		if tz != "" {
			r.timezone = tz
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *PostgresRepository) {
		r.now = now
	}
}

func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	r := &PostgresRepository{pool: pool, timezone: "UTC", now: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate qr_scans: %w", err)
		}
	}
	return nil
}

// RecordScan appends one event to the log. A repeated event ID is ignored.
func (r *PostgresRepository) RecordScan(ctx context.Context, event *domain.ScanEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	query := `INSERT INTO qr_scans (event_id, ts, slug, dest, ip_truncated, ua, ref, country, region, city, method)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          ON CONFLICT (event_id) DO NOTHING`

	var eventID *string
	if event.ID != "" {
		eventID = &event.ID
	}

	_, err := r.pool.Exec(ctx, query,
		eventID, ts.UTC(), event.Slug, event.Destination,
		event.IPTruncated, event.UserAgent, event.Referer,
		event.Country, event.Region, event.City, event.Method,
	)
	if err != nil {
		return fmt.Errorf("%w: record scan: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Aggregate groups the window's scans by calendar day in the configured zone
// and by slug. uniques counts distinct (ip_truncated, ua) pairs.
func (r *PostgresRepository) Aggregate(ctx context.Context, q domain.StatsQuery) ([]domain.StatsRow, error) {
	from := q.Since(r.now()).UTC()

	query := `SELECT to_char((ts AT TIME ZONE $1)::date, 'YYYY-MM-DD') AS day,
	                 slug,
	                 COUNT(*) AS scans,
	                 COUNT(DISTINCT (ip_truncated, ua)) AS uniques
	            FROM qr_scans
	           WHERE ts >= $2`
	args := []any{r.timezone, from}

	if q.Slug != "" {
		query += ` AND slug = $3`
		args = append(args, q.Slug)
	}
	query += ` GROUP BY 1, 2 ORDER BY 1 DESC, 2 ASC`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire: %v", domain.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	stats := []domain.StatsRow{}
	for rows.Next() {
		var s domain.StatsRow
		if err := rows.Scan(&s.Day, &s.Slug, &s.Scans, &s.Uniques); err != nil {
			return nil, fmt.Errorf("%w: scan aggregate row: %v", domain.ErrStoreUnavailable, err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: aggregate rows: %v", domain.ErrStoreUnavailable, err)
	}

	return stats, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

var _ ports.ScanRepository = (*PostgresRepository)(nil)
