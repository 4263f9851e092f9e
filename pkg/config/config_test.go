package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "STATS_BACKEND", "TELEMETRY_SINK_URL", "N8N_WEBHOOK_URL", "SLUG_MAP", "SLUG_MAP_FILE", "JWT_SECRET", "TELEMETRY_WAIT", "STATS_TIMEZONE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "landing", cfg.DefaultSlug)
	assert.Equal(t, BackendHTTP, cfg.StatsBackend)
	assert.Equal(t, time.Duration(0), cfg.TelemetryWait)
	assert.Equal(t, DefaultSlugs, cfg.Slugs)
	assert.False(t, cfg.AuthEnabled())
	assert.Equal(t, "America/Argentina/Buenos_Aires", cfg.Location().String())
}

func TestLoadAliasesAndBackend(t *testing.T) {
	t.Setenv("TELEMETRY_SINK_URL", "")
	t.Setenv("N8N_WEBHOOK_URL", "https://hooks.example.org/qr")
	t.Setenv("N8N_STATS_TOKEN", "tok")
	t.Setenv("DATABASE_URL", "file:qr.sqlite")
	t.Setenv("STATS_BACKEND", "")
	t.Setenv("TELEMETRY_WAIT", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://hooks.example.org/qr", cfg.TelemetrySinkURL)
	assert.Equal(t, "tok", cfg.StatsSourceToken)
	assert.Equal(t, BackendSQL, cfg.StatsBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.TelemetryWait)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	t.Setenv("STATS_BACKEND", "mongo")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STATS_BACKEND", "")
	t.Setenv("TELEMETRY_WAIT", "soon")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadSlugsLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slugs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("slugs:\n  landing: https://a.example.com\n  promo: https://b.example.com/p?x=1\n"), 0o600))

	slugs, err := loadSlugs(path, "promo=https://c.example.com, menu = https://d.example.com")
	require.NoError(t, err)

	assert.Equal(t, "https://a.example.com", slugs["landing"])
	assert.Equal(t, "https://c.example.com", slugs["promo"])
	assert.Equal(t, "https://d.example.com", slugs["menu"])
	assert.Equal(t, DefaultSlugs["catalogo"], slugs["catalogo"])

	_, err = loadSlugs("", "broken")
	assert.Error(t, err)
}

func TestParseWait(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"300ms", 300 * time.Millisecond},
		{"150", 150 * time.Millisecond},
		{"1s", time.Second},
	}
	for _, tt := range tests {
		got, err := parseWait(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSinkToken(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		ingest   string
		sinkURL  string
		baseURL  string
		want     string
	}{
		{"explicit wins", "sink-tok", "ingest-tok", "https://hooks.example.org/qr", "https://qr.example.com", "sink-tok"},
		{"own ingest reuses ingest token", "", "ingest-tok", "https://qr.example.com/api/scans", "https://qr.example.com/", "ingest-tok"},
		{"external sink never gets ingest token", "", "ingest-tok", "https://hooks.example.org/qr", "https://qr.example.com", ""},
		{"no tokens", "", "", "https://qr.example.com/api/scans", "https://qr.example.com", ""},
		{"no sink", "", "ingest-tok", "", "https://qr.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sinkToken(tt.explicit, tt.ingest, tt.sinkURL, tt.baseURL))
		})
	}
}

func TestLoadSinkTokenForOwnIngest(t *testing.T) {
	t.Setenv("BASE_URL", "https://qr.example.com")
	t.Setenv("TELEMETRY_SINK_URL", "https://qr.example.com/api/scans")
	t.Setenv("TELEMETRY_SINK_TOKEN", "")
	t.Setenv("INGEST_TOKEN", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.TelemetrySinkToken)
}

func TestDefaultTelemetryWait(t *testing.T) {
	t.Setenv("TELEMETRY_WAIT", "")
	os.Unsetenv("TELEMETRY_WAIT")

	cfg, err := Load()
	require.NoError(t, err)
	cfg.DefaultTelemetryWait(400 * time.Millisecond)
	assert.Equal(t, 400*time.Millisecond, cfg.TelemetryWait)

	t.Setenv("TELEMETRY_WAIT", "0")
	cfg, err = Load()
	require.NoError(t, err)
	cfg.DefaultTelemetryWait(400 * time.Millisecond)
	assert.Equal(t, time.Duration(0), cfg.TelemetryWait)

	t.Setenv("TELEMETRY_WAIT", "100ms")
	cfg, err = Load()
	require.NoError(t, err)
	cfg.DefaultTelemetryWait(400 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, cfg.TelemetryWait)
}
