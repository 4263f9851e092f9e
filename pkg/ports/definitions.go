package ports

import (
	"context"

	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
)

// ScanEmitter hands a scan event to the telemetry sink. It never reports failure.
type ScanEmitter interface {
	Emit(ctx context.Context, event domain.ScanEvent)
}

// StatsSource produces canonical rows for a window. Implementations are the
// HTTP analytics source and the SQL event stores.
type StatsSource interface {
	Stats(ctx context.Context, q domain.StatsQuery) ([]domain.StatsRow, error)
}

// StatsSourceFunc adapts a function, typically ScanRepository.Aggregate, to StatsSource.
type StatsSourceFunc func(ctx context.Context, q domain.StatsQuery) ([]domain.StatsRow, error)

func (f StatsSourceFunc) Stats(ctx context.Context, q domain.StatsQuery) ([]domain.StatsRow, error) {
	return f(ctx, q)
}

// ScanRepository defines storage operations for the scan event log
type ScanRepository interface {
	RecordScan(ctx context.Context, event *domain.ScanEvent) error
	Aggregate(ctx context.Context, q domain.StatsQuery) ([]domain.StatsRow, error)
	Close() error
}

// RedirectService defines the redirect dispatch operation
type RedirectService interface {
	Redirect(ctx context.Context, slug string, client domain.Client) domain.Destination
}

// StatsService defines the stats read path
type StatsService interface {
	Stats(ctx context.Context, days int, slug string) ([]domain.StatsRow, domain.StatsQuery, error)
}
