package services

import (
	"context"
	"strings"

	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

type StatsService struct {
	source ports.StatsSource
}

func NewStatsService(source ports.StatsSource) *StatsService {
	return &StatsService{source: source}
}

// Stats clamps the window to [1, 365] days before it reaches the source and
// returns the query actually issued alongside the rows.
func (s *StatsService) Stats(ctx context.Context, days int, slug string) ([]domain.StatsRow, domain.StatsQuery, error) {
	q := domain.StatsQuery{
		Days: domain.ClampDays(days),
		Slug: strings.TrimSpace(slug),
	}

	rows, err := s.source.Stats(ctx, q)
	if err != nil {
		return nil, q, err
	}
	if rows == nil {
		rows = []domain.StatsRow{}
	}
	return rows, q, nil
}

// MissingSource is the StatsSource used when the deployment lacks the
// settings for its stats backend. Every call reports the missing setting.
type MissingSource struct {
	Setting string
}

func (m MissingSource) Stats(context.Context, domain.StatsQuery) ([]domain.StatsRow, error) {
	return nil, &domain.ConfigError{Missing: m.Setting}
}

var _ ports.StatsService = (*StatsService)(nil)
