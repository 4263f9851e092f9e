package handler

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/metrics"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

const maxIngestBody = 64 << 10

// IngestHandler stores scan events POSTed by the telemetry emitter, so the
// SQL stats backend can run without an external workflow in between.
type IngestHandler struct {
	repo    ports.ScanRepository
	token   string
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewIngestHandler(repo ports.ScanRepository, token string, m *metrics.Metrics, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{repo: repo, token: token, metrics: m, log: log}
}

// Record answers POST /api/scans.
func (h *IngestHandler) Record(w http.ResponseWriter, r *http.Request) {
	if h.token != "" {
		got := r.Header.Get(domain.TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	var event domain.ScanEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxIngestBody)).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid scan event"})
		return
	}
	event.Slug = strings.TrimSpace(event.Slug)
	if event.Slug == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "slug is required"})
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := h.repo.RecordScan(r.Context(), &event); err != nil {
		h.log.Error().Err(err).Str("slug", event.Slug).Msg("record scan")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	h.metrics.Ingested()
	writeJSON(w, http.StatusAccepted, map[string]string{"id": event.ID})
}
