package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/handler"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/httpclient"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/metrics"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/repository/postgres"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/statsource"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/telemetry"
	"github.com/wadjakorntonsri/qr-router/pkg/config"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/core/services"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

// App is the assembled service shared by the server, the Vercel entry point
// and the CLI.
type App struct {
	Config   *config.Config
	Slugs    *services.SlugMap
	Emitter  *telemetry.Emitter
	Repo     ports.ScanRepository
	Source   ports.StatsSource
	Redirect *services.RedirectService
	Stats    *services.StatsService
	Metrics  *metrics.Metrics
	Router   http.Handler

	log zerolog.Logger
}

// New wires every component from cfg. A malformed slug map is fatal; an
// unreachable event store is not, since the redirect path does not need it.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	slugs, err := services.NewSlugMap(cfg.Slugs, cfg.DefaultSlug, cfg.FallbackURL)
	if err != nil {
		return nil, fmt.Errorf("slug map: %w", err)
	}

	a := &App{
		Config:  cfg,
		Slugs:   slugs,
		Metrics: metrics.New(),
		log:     log,
	}

	a.Emitter = telemetry.NewEmitter(telemetry.Config{
		SinkURL:   cfg.TelemetrySinkURL,
		SinkToken: cfg.TelemetrySinkToken,
		Budget:    cfg.TelemetryWait,
		Client:    httpclient.New(0),
	}, log, a.Metrics)
	if cfg.TelemetrySinkURL == "" {
		log.Warn().Msg("TELEMETRY_SINK_URL not set, scan events are not recorded")
	}
	if cfg.TelemetryWait > telemetry.MaxBudget {
		log.Warn().Dur("requested", cfg.TelemetryWait).Dur("effective", a.Emitter.Budget()).Msg("TELEMETRY_WAIT capped")
	}

	var storeErr error
	if cfg.DatabaseURL != "" {
		a.Repo, storeErr = OpenRepository(ctx, cfg)
		if storeErr != nil {
			log.Error().Err(storeErr).Msg("event store unavailable")
		}
	}

	a.Source = a.statsSource(storeErr)
	a.Redirect = services.NewRedirectService(slugs, a.Emitter, log)
	a.Stats = services.NewStatsService(a.Source)
	a.Router = handler.NewRouter(cfg, handler.Deps{
		Redirect: a.Redirect,
		Stats:    a.Stats,
		Repo:     a.Repo,
		Metrics:  a.Metrics,
		Log:      log,
	})

	log.Info().
		Int("slugs", len(slugs.Slugs())).
		Str("fallback", slugs.FallbackSlug()).
		Str("stats_backend", cfg.StatsBackend).
		Dur("telemetry_wait", a.Emitter.Budget()).
		Bool("auth", cfg.AuthEnabled()).
		Msg("qr router ready")
	return a, nil
}

func (a *App) statsSource(storeErr error) ports.StatsSource {
	cfg := a.Config
	if cfg.StatsBackend == config.BackendHTTP {
		return statsource.NewHTTPSource(cfg.StatsSourceURL, cfg.StatsSourceToken, httpclient.New(15*time.Second), a.log)
	}

	switch {
	case cfg.DatabaseURL == "":
		return services.MissingSource{Setting: "DATABASE_URL"}
	case a.Repo == nil:
		if !errors.Is(storeErr, domain.ErrStoreUnavailable) {
			storeErr = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, storeErr)
		}
		return ports.StatsSourceFunc(func(context.Context, domain.StatsQuery) ([]domain.StatsRow, error) {
			return nil, storeErr
		})
	default:
		return ports.StatsSourceFunc(a.Repo.Aggregate)
	}
}

// OpenRepository picks the event store from the DATABASE_URL scheme.
func OpenRepository(ctx context.Context, cfg *config.Config) (ports.ScanRepository, error) {
	if isPostgresURL(cfg.DatabaseURL) {
		return postgres.NewPostgresRepository(ctx, cfg.DatabaseURL, postgres.WithTimezone(cfg.StatsTimezone))
	}
	return sqlite.NewSQLiteRepository(cfg.DatabaseURL, sqlite.WithLocation(cfg.Location()))
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Close waits for detached telemetry submissions, then releases the store.
func (a *App) Close() error {
	a.Emitter.Wait()
	if a.Repo != nil {
		return a.Repo.Close()
	}
	return nil
}
