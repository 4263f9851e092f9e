package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/metrics"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/telemetry"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

// QRHandler serves the redirect path printed in the QR codes.
type QRHandler struct {
	service ports.RedirectService
	metrics *metrics.Metrics
}

func NewQRHandler(service ports.RedirectService, m *metrics.Metrics) *QRHandler {
	return &QRHandler{service: service, metrics: m}
}

// Redirect always answers 302. Unknown or empty slugs go to the fallback
// destination; telemetry problems never reach the client.
func (h *QRHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	dest := h.service.Redirect(r.Context(), slug, telemetry.ClientFromRequest(r))
	h.metrics.Redirect(dest.Slug, r.Method)

	w.Header().Set("Location", dest.Annotated)
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusFound)
}

// StatsResponse is the dashboard payload.
type StatsResponse struct {
	OK            bool              `json:"ok"`
	Days          int               `json:"days"`
	Slug          string            `json:"slug"`
	Rows          []domain.StatsRow `json:"rows"`
	ApproxUniques bool              `json:"approx_uniques"`
	Error         string            `json:"error,omitempty"`
}

type StatsHandler struct {
	service ports.StatsService
	backend string
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewStatsHandler(service ports.StatsService, backend string, m *metrics.Metrics, log zerolog.Logger) *StatsHandler {
	return &StatsHandler{service: service, backend: backend, metrics: m, log: log}
}

// Stats answers GET /api/stats?days=N&slug=S.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := domain.ParseDays(r.URL.Query().Get("days"))
	slug := r.URL.Query().Get("slug")

	w.Header().Set("Cache-Control", "no-store")

	rows, q, err := h.service.Stats(r.Context(), days, slug)
	if err != nil {
		h.metrics.StatsRequest(h.backend, "error")
		h.writeStatsError(w, q, err)
		return
	}

	h.metrics.StatsRequest(h.backend, "ok")
	writeJSON(w, http.StatusOK, StatsResponse{
		OK:            true,
		Days:          q.Days,
		Slug:          q.Slug,
		Rows:          rows,
		ApproxUniques: true,
	})
}

func (h *StatsHandler) writeStatsError(w http.ResponseWriter, q domain.StatsQuery, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	var cfgErr *domain.ConfigError
	var upErr *domain.UpstreamError
	switch {
	case errors.As(err, &cfgErr):
		msg = cfgErr.Error()
	case errors.As(err, &upErr):
		status = upErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		msg = upErr.Body
		if msg == "" {
			msg = http.StatusText(upErr.Status)
		}
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	h.log.Warn().Err(err).Int("status", status).Int("days", q.Days).Str("slug", q.Slug).Msg("stats request failed")
	writeJSON(w, status, StatsResponse{
		OK:    false,
		Days:  q.Days,
		Slug:  q.Slug,
		Rows:  []domain.StatsRow{},
		Error: msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
