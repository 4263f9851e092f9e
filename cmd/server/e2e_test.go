package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/handler"
	"github.com/wadjakorntonsri/qr-router/pkg/app"
	"github.com/wadjakorntonsri/qr-router/pkg/config"
)

// startServer runs the router with the telemetry sink pointed at its own
// ingest endpoint, so scans are read back from SQLite by the stats API.
func startServer(t *testing.T, dbName string, tweak func(cfg *config.Config)) (*httptest.Server, *http.Client) {
	t.Helper()

	// The listener is bound before Start, so the sink URL is known up front.
	server := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + server.Listener.Addr().String()

	cfg := &config.Config{
		AppEnv:      "test",
		BaseURL:     baseURL,
		DefaultSlug: "landing",
		FallbackURL: "https://www.example.com",
		Slugs: map[string]string{
			"landing":  "https://www.example.com",
			"catalogo": "https://www.example.com/catalogo",
		},
		TelemetrySinkURL: baseURL + "/api/scans",
		TelemetryWait:    400 * time.Millisecond,
		StatsBackend:     config.BackendSQL,
		StatsTimezone:    "UTC",
		DatabaseURL:      "file:" + dbName + "?mode=memory&cache=shared",
	}
	if tweak != nil {
		tweak(cfg)
	}

	application, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	server.Config.Handler = application.Router
	server.Start()
	t.Cleanup(func() {
		server.Close()
		_ = application.Close()
	})

	client := server.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return server, client
}

func fetchStats(t *testing.T, client *http.Client, url string) handler.StatsResponse {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var stats handler.StatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))
	return stats
}

func TestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	server, client := startServer(t, "e2edb", nil)

	// Redirects
	resp, err := client.Get(server.URL + "/qr/landing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "utm_source=qr&utm_medium=print&utm_campaign=landing")

	resp, err = client.Get(server.URL + "/qr/flyer-2019")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "utm_campaign=landing")

	resp, err = client.Head(server.URL + "/qr/catalogo")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://www.example.com/catalogo?"))

	// Stats read back what the sink stored
	stats := fetchStats(t, client, server.URL+"/api/stats?days=400")
	assert.True(t, stats.OK)
	assert.Equal(t, 365, stats.Days)

	today := time.Now().UTC().Format("2006-01-02")
	bySlug := map[string]int64{}
	for _, r := range stats.Rows {
		assert.Equal(t, today, r.Day)
		assert.LessOrEqual(t, r.Uniques, r.Scans)
		bySlug[r.Slug] += r.Scans
	}
	assert.Equal(t, map[string]int64{"landing": 1, "flyer-2019": 1, "catalogo": 1}, bySlug)

	// Health and metrics
	resp, err = client.Get(server.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"message":"ok"}`, string(body))

	resp, err = client.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `qr_router_redirects_total{method="HEAD",slug="catalogo"} 1`)
	assert.Contains(t, string(body), `qr_router_telemetry_events_total{outcome="sent"} 3`)
	assert.Contains(t, string(body), "qr_router_scans_ingested_total 3")
}

func TestIntegrationWithIngestToken(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	server, client := startServer(t, "e2edb_token", func(cfg *config.Config) {
		cfg.IngestToken = "s3cret"
		cfg.TelemetrySinkToken = "s3cret"
	})

	resp, err := client.Get(server.URL + "/qr/landing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	stats := fetchStats(t, client, server.URL+"/api/stats?days=7")
	require.Len(t, stats.Rows, 1)
	assert.Equal(t, "landing", stats.Rows[0].Slug)
	assert.Equal(t, int64(1), stats.Rows[0].Scans)

	// Without the token the ingest endpoint refuses the event.
	resp, err = client.Post(server.URL+"/api/scans", "application/json", strings.NewReader(`{"slug":"landing"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = client.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `qr_router_telemetry_events_total{outcome="sent"} 1`)
	assert.Contains(t, string(body), "qr_router_scans_ingested_total 1")
	assert.NotContains(t, string(body), `outcome="rejected"`)
}
