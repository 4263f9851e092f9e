package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/wadjakorntonsri/qr-router/pkg/adapters/telemetry"
	"github.com/wadjakorntonsri/qr-router/pkg/app"
	"github.com/wadjakorntonsri/qr-router/pkg/config"
	"github.com/wadjakorntonsri/qr-router/pkg/logger"
)

var mux http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	cfg.DefaultTelemetryWait(telemetry.MaxBudget)
	log := logger.Init(cfg.AppEnv)

	// Note: On Vercel, a file DATABASE_URL is ephemeral; use Postgres or a remote libSQL/Turso URL
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		panic(err)
	}

	mux = application.Router
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
