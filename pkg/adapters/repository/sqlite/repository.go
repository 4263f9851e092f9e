package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
	_ "modernc.org/sqlite" // Local SQLite driver
)

// Timestamps are stored as UTC text in this layout so they compare lexically.
const tsLayout = "2006-01-02 15:04:05"

type SQLiteRepository struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

type Option func(*SQLiteRepository)

// WithLocation sets the timezone that anchors day boundaries in Aggregate.
func WithLocation(loc *time.Location) Option {
	return func(r *SQLiteRepository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) {
		r.now = now
	}
}

func NewSQLiteRepository(dbURL string, opts ...Option) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	r := &SQLiteRepository{db: db, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS qr_scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT UNIQUE,
		ts TEXT NOT NULL,
		slug TEXT NOT NULL,
		dest TEXT NOT NULL DEFAULT '',
		ip_truncated TEXT NOT NULL DEFAULT '',
		ua TEXT NOT NULL DEFAULT '',
		ref TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_qr_scans_ts ON qr_scans(ts);
	CREATE INDEX IF NOT EXISTS idx_qr_scans_slug_ts ON qr_scans(slug, ts);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("migrate qr_scans: %w", err)
	}
	return nil
}

// RecordScan appends one event to the log. A repeated event ID is ignored.
func (r *SQLiteRepository) RecordScan(ctx context.Context, event *domain.ScanEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	query := `INSERT INTO qr_scans (event_id, ts, slug, dest, ip_truncated, ua, ref, country, region, city, method)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(event_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		nullable(event.ID), ts.UTC().Format(tsLayout), event.Slug, event.Destination,
		event.IPTruncated, event.UserAgent, event.Referer,
		event.Country, event.Region, event.City, event.Method,
	)
	if err != nil {
		return fmt.Errorf("%w: record scan: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Aggregate groups the window's scans by local calendar day and slug.
//
// SQLite has no timezone database, so the local day is derived with the
// location's UTC offset at query time. Across a DST change inside the window,
// events within an hour of midnight may land on the neighbouring day.
// uniques counts distinct (ip_truncated, ua) pairs: an approximation of
// unique visitors, not an exact count.
func (r *SQLiteRepository) Aggregate(ctx context.Context, q domain.StatsQuery) ([]domain.StatsRow, error) {
	now := r.now()
	from := q.Since(now).UTC()
	_, offset := now.In(r.loc).Zone()

	query := `
		SELECT date(ts, ?) AS day,
		       slug,
		       COUNT(*) AS scans,
		       COUNT(DISTINCT ip_truncated || char(31) || ua) AS uniques
		  FROM qr_scans
		 WHERE ts >= ?`
	args := []interface{}{fmt.Sprintf("%+d minutes", offset/60), from.Format(tsLayout)}

	if q.Slug != "" {
		query += " AND slug = ?"
		args = append(args, q.Slug)
	}
	query += " GROUP BY 1, 2 ORDER BY 1 DESC, 2 ASC"

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
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

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Ensure interface compliance
var _ ports.ScanRepository = (*SQLiteRepository)(nil)
