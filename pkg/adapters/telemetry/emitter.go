package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/httpclient"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/metrics"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

// MaxBudget is the longest a redirect may wait on the telemetry sink.
const MaxBudget = 400 * time.Millisecond

const defaultDetachedTimeout = 5 * time.Second

type Config struct {
	// SinkURL is where scan events are POSTed. Empty disables emission.
	SinkURL string
	// SinkToken, when set, is sent in the X-QR-Token header.
	SinkToken string
	// Budget is how long Emit waits for the sink, capped at MaxBudget.
	// Zero means fire-and-forget.
	Budget time.Duration
	// DetachedTimeout bounds a fire-and-forget submission.
	DetachedTimeout time.Duration
	Client          *http.Client
}

// Emitter posts scan events to the telemetry sink. Delivery is best effort:
// one attempt per event, outcome never reported to the caller.
type Emitter struct {
	sinkURL  string
	token    string
	budget   time.Duration
	detached time.Duration
	client   *http.Client
	log      zerolog.Logger
	metrics  *metrics.Metrics

	inflight sync.WaitGroup
}

func NewEmitter(cfg Config, log zerolog.Logger, m *metrics.Metrics) *Emitter {
	budget := cfg.Budget
	if budget < 0 {
		budget = 0
	}
	if budget > MaxBudget {
		budget = MaxBudget
	}
	detached := cfg.DetachedTimeout
	if detached <= 0 {
		detached = defaultDetachedTimeout
	}
	client := cfg.Client
	if client == nil {
		client = httpclient.New(0)
	}

	return &Emitter{
		sinkURL:  cfg.SinkURL,
		token:    cfg.SinkToken,
		budget:   budget,
		detached: detached,
		client:   client,
		log:      log.With().Str("component", "telemetry").Logger(),
		metrics:  m,
	}
}

// Budget reports the effective wait budget.
func (e *Emitter) Budget() time.Duration {
	return e.budget
}

// Emit submits event. With a budget it returns once the sink answered or the
// budget ran out, whichever comes first; the pending request is cancelled on
// expiry. Without a budget it returns immediately and the submission runs on
// its own.
func (e *Emitter) Emit(ctx context.Context, event domain.ScanEvent) {
	if e.sinkURL == "" {
		e.metrics.Telemetry(metrics.OutcomeSkipped, 0)
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		e.log.Warn().Err(err).Str("slug", event.Slug).Msg("encode scan event")
		e.metrics.Telemetry(metrics.OutcomeError, 0)
		return
	}

	// The inbound request may finish (or its client hang up) before the sink
	// answers; only the budget may cut the submission short.
	ctx = context.WithoutCancel(ctx)

	if e.budget == 0 {
		e.inflight.Add(1)
		go func() {
			defer e.inflight.Done()
			ctx, cancel := context.WithTimeout(ctx, e.detached)
			defer cancel()
			e.send(ctx, body)
		}()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()
	e.send(ctx, body)
}

// Wait blocks until detached submissions have finished. Used on shutdown.
func (e *Emitter) Wait() {
	e.inflight.Wait()
}

func (e *Emitter) send(ctx context.Context, body []byte) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.sinkURL, bytes.NewReader(body))
	if err != nil {
		e.log.Warn().Err(err).Msg("build telemetry request")
		e.metrics.Telemetry(metrics.OutcomeError, time.Since(start))
		return
	}
	// No GetBody: the transport cannot replay the POST, so there is exactly one attempt.
	req.GetBody = nil
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")
	if e.token != "" {
		req.Header.Set(domain.TokenHeader, e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		e.log.Debug().Err(err).Str("outcome", outcome).Msg("scan event dropped")
		e.metrics.Telemetry(outcome, time.Since(start))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 != 2 {
		e.log.Debug().Int("status", resp.StatusCode).Msg("telemetry sink rejected scan event")
		e.metrics.Telemetry(metrics.OutcomeRejected, time.Since(start))
		return
	}
	e.metrics.Telemetry(metrics.OutcomeSent, time.Since(start))
}

var _ ports.ScanEmitter = (*Emitter)(nil)
