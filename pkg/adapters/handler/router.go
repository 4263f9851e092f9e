package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/metrics"
	"github.com/wadjakorntonsri/qr-router/pkg/config"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

// Deps are the services the router dispatches to. Repo may be nil when no
// DATABASE_URL is configured; the ingest route is then not mounted.
type Deps struct {
	Redirect ports.RedirectService
	Stats    ports.StatsService
	Repo     ports.ScanRepository
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
}

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	qr := NewQRHandler(deps.Redirect, deps.Metrics)
	stats := NewStatsHandler(deps.Stats, cfg.StatsBackend, deps.Metrics, deps.Log)

	mw := NewMiddleware(cfg, deps.Log)

	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		res := map[string]string{
			"message": "ok",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&res)
	})
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	// GET patterns also match HEAD.
	mux.HandleFunc("GET /qr", qr.Redirect)
	mux.HandleFunc("GET /qr/{$}", qr.Redirect)
	mux.HandleFunc("GET /qr/{slug}", qr.Redirect)

	if deps.Repo != nil {
		ingest := NewIngestHandler(deps.Repo, cfg.IngestToken, deps.Metrics, deps.Log)
		mux.HandleFunc("POST /api/scans", ingest.Record)
	}

	// Operator login only exists when the stats API is protected.
	if mw.Enabled() {
		authHandler := NewAuthHandler(cfg, deps.Log)
		mux.HandleFunc("GET /auth/google/login", authHandler.Login)
		mux.HandleFunc("GET /auth/google/callback", authHandler.Callback)
		mux.HandleFunc("GET /auth/logout", authHandler.Logout)
	}

	mux.Handle("GET /api/stats", mw.AuthMiddleware(http.HandlerFunc(stats.Stats)))

	return mw.Logging(mux)
}
