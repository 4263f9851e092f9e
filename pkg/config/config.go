package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendHTTP = "http"
	BackendSQL  = "sql"
)

// DefaultSlugs is the slug map used when neither SLUG_MAP_FILE nor SLUG_MAP
// provide one. Entries from those sources override these by name.
var DefaultSlugs = map[string]string{
	"landing":  "https://www.example.com",
	"catalogo": "https://www.example.com/catalogo",
	"whatsapp": "https://wa.me/5491112345678",
}

type Config struct {
	Port    string
	AppEnv  string
	BaseURL string

	DefaultSlug string
	FallbackURL string
	Slugs       map[string]string

	TelemetrySinkURL   string
	TelemetrySinkToken string
	TelemetryWait      time.Duration

	telemetryWaitSet bool

	StatsBackend     string
	StatsSourceURL   string
	StatsSourceToken string
	StatsTimezone    string
	DatabaseURL      string
	IngestToken      string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	JWTSecret          string
	AllowedEmails      []string
	FrontendURL        string
}

// Load reads the environment (and .env when present). It fails only on
// settings that cannot be parsed; missing optional settings are reported
// later by the component that needs them.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		AppEnv:             getEnv("APP_ENV", "local"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
		DefaultSlug:        getEnv("DEFAULT_SLUG", "landing"),
		FallbackURL:        getEnv("FALLBACK_URL", "https://www.example.com"),
		TelemetrySinkURL:   firstEnv("TELEMETRY_SINK_URL", "N8N_WEBHOOK_URL"),
		StatsSourceURL:     firstEnv("STATS_SOURCE_URL", "N8N_STATS_URL"),
		StatsSourceToken:   firstEnv("STATS_SOURCE_TOKEN", "N8N_STATS_TOKEN"),
		StatsTimezone:      getEnv("STATS_TIMEZONE", "America/Argentina/Buenos_Aires"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		IngestToken:        getEnv("INGEST_TOKEN", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		AllowedEmails:      splitList(getEnv("ALLOWED_EMAILS", "")),
		FrontendURL:        getEnv("FRONTEND_URL", "/api/stats"),
	}

	rawWait, waitSet := os.LookupEnv("TELEMETRY_WAIT")
	wait, err := parseWait(rawWait)
	if err != nil {
		return nil, err
	}
	cfg.TelemetryWait = wait
	cfg.telemetryWaitSet = waitSet && strings.TrimSpace(rawWait) != ""

	cfg.TelemetrySinkToken = sinkToken(getEnv("TELEMETRY_SINK_TOKEN", ""), cfg.IngestToken, cfg.TelemetrySinkURL, cfg.BaseURL)

	cfg.StatsBackend, err = resolveBackend(getEnv("STATS_BACKEND", ""), cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if _, err := time.LoadLocation(cfg.StatsTimezone); err != nil {
		return nil, fmt.Errorf("STATS_TIMEZONE: %w", err)
	}

	cfg.Slugs, err = loadSlugs(getEnv("SLUG_MAP_FILE", ""), getEnv("SLUG_MAP", ""))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location returns the operator timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.StatsTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultTelemetryWait sets the telemetry budget to wait when TELEMETRY_WAIT
// was not given. Serverless entry points use it: work left running after the
// response may be frozen there.
func (c *Config) DefaultTelemetryWait(wait time.Duration) {
	if !c.telemetryWaitSet {
		c.TelemetryWait = wait
	}
}

// sinkToken is TELEMETRY_SINK_TOKEN, or INGEST_TOKEN when the sink is this
// service's own ingest endpoint. An external sink never receives INGEST_TOKEN.
func sinkToken(explicit, ingestToken, sinkURL, baseURL string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if ingestToken == "" || sinkURL == "" {
		return ""
	}
	if sinkURL == strings.TrimRight(baseURL, "/")+"/api/scans" {
		return ingestToken
	}
	return ""
}

// AuthEnabled reports whether the stats API requires an operator token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// parseWait accepts a Go duration ("250ms") or a bare number of milliseconds.
func parseWait(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	d, err := time.ParseDuration(raw + "ms")
	if err != nil {
		return 0, fmt.Errorf("TELEMETRY_WAIT: invalid duration %q", raw)
	}
	return d, nil
}

func resolveBackend(raw, databaseURL string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		if databaseURL != "" {
			return BackendSQL, nil
		}
		return BackendHTTP, nil
	case BackendHTTP:
		return BackendHTTP, nil
	case BackendSQL:
		return BackendSQL, nil
	default:
		return "", fmt.Errorf("STATS_BACKEND: unknown backend %q", raw)
	}
}

type slugFile struct {
	Slugs map[string]string `yaml:"slugs"`
}

// loadSlugs layers the YAML file and then the inline SLUG_MAP over DefaultSlugs.
func loadSlugs(path, inline string) (map[string]string, error) {
	slugs := make(map[string]string, len(DefaultSlugs))
	for k, v := range DefaultSlugs {
		slugs[k] = v
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("SLUG_MAP_FILE: %w", err)
		}
		var f slugFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("SLUG_MAP_FILE: %w", err)
		}
		for k, v := range f.Slugs {
			slugs[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}

	for _, pair := range splitList(inline) {
		name, dest, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("SLUG_MAP: entry %q is not name=url", pair)
		}
		slugs[name] = strings.TrimSpace(dest)
	}

	return slugs, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
