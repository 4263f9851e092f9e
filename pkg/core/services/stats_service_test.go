package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

func TestStatsServiceClampsWindow(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{400, 365},
		{365, 365},
		{30, 30},
		{1, 1},
		{0, 1},
		{-10, 1},
	}

	for _, tt := range tests {
		var got domain.StatsQuery
		src := ports.StatsSourceFunc(func(_ context.Context, q domain.StatsQuery) ([]domain.StatsRow, error) {
			got = q
			return nil, nil
		})

		rows, q, err := NewStatsService(src).Stats(context.Background(), tt.days, "  landing ")
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Equal(t, tt.want, got.Days)
		assert.Equal(t, "landing", got.Slug)
		assert.Equal(t, got, q)
	}
}

func TestStatsServiceMissingSource(t *testing.T) {
	_, q, err := NewStatsService(MissingSource{Setting: "DATABASE_URL"}).Stats(context.Background(), 7, "")

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "DATABASE_URL missing", err.Error())
	assert.Equal(t, 7, q.Days)
}
