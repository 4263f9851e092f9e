package statsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
)

func TestHTTPSourceForwardsQueryAndToken(t *testing.T) {
	var gotQuery, gotToken string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotToken = r.Header.Get(TokenHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"json":{"dia":"2026-10-15","slug":"landing","escaneos":"4","unicos":2}}]`))
	}))
	defer upstream.Close()

	src := NewHTTPSource(upstream.URL+"/webhook/qr-stats?env=prod", "s3cret", upstream.Client(), zerolog.Nop())
	rows, err := src.Stats(context.Background(), domain.StatsQuery{Days: 7, Slug: "landing"})

	require.NoError(t, err)
	assert.Equal(t, []domain.StatsRow{{Day: "2026-10-15", Slug: "landing", Scans: 4, Uniques: 2}}, rows)
	assert.Equal(t, "days=7&env=prod&slug=landing", gotQuery)
	assert.Equal(t, "s3cret", gotToken)
}

func TestHTTPSourceParsesJSONWithoutContentType(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"rows":[{"day":"2026-10-15","slug":"landing","scans":1,"uniques":1}]}`))
	}))
	defer upstream.Close()

	src := NewHTTPSource(upstream.URL, "", upstream.Client(), zerolog.Nop())
	rows, err := src.Stats(context.Background(), domain.StatsQuery{Days: 30})

	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestHTTPSourceMalformedPayloadIsEmpty(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer upstream.Close()

	src := NewHTTPSource(upstream.URL, "", upstream.Client(), zerolog.Nop())
	rows, err := src.Stats(context.Background(), domain.StatsQuery{Days: 30})

	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestHTTPSourceSurfacesUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"bad token"}`))
	}))
	defer upstream.Close()

	src := NewHTTPSource(upstream.URL, "wrong", upstream.Client(), zerolog.Nop())
	_, err := src.Stats(context.Background(), domain.StatsQuery{Days: 30})

	var upErr *domain.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusForbidden, upErr.Status)
	assert.Equal(t, `{"message":"bad token"}`, upErr.Body)
}

func TestHTTPSourceWithoutURLIsConfigError(t *testing.T) {
	src := NewHTTPSource("", "", nil, zerolog.Nop())
	_, err := src.Stats(context.Background(), domain.StatsQuery{Days: 30})

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "STATS_SOURCE_URL", cfgErr.Missing)
}
