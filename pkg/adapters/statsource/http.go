package statsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wadjakorntonsri/qr-router/pkg/adapters/httpclient"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/core/normalize"
	"github.com/wadjakorntonsri/qr-router/pkg/ports"
)

// TokenHeader carries the shared secret expected by the analytics endpoint.
const TokenHeader = domain.TokenHeader

const maxBody = 4 << 20

// HTTPSource asks an external analytics endpoint for stats and normalizes
// whatever shape it answers with.
type HTTPSource struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

func NewHTTPSource(baseURL, token string, client *http.Client, log zerolog.Logger) *HTTPSource {
	if client == nil {
		client = httpclient.New(15 * time.Second)
	}
	return &HTTPSource{
		baseURL: strings.TrimSpace(baseURL),
		token:   strings.TrimSpace(token),
		client:  client,
		log:     log.With().Str("component", "stats_source").Logger(),
	}
}

func (s *HTTPSource) Stats(ctx context.Context, q domain.StatsQuery) ([]domain.StatsRow, error) {
	endpoint, err := s.endpoint(q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build stats request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	if s.token != "" {
		req.Header.Set(TokenHeader, s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Status: http.StatusBadGateway, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &domain.UpstreamError{Status: http.StatusBadGateway, Body: err.Error()}
	}

	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &domain.UpstreamError{Status: resp.StatusCode, Body: msg}
	}

	// The content-type is not trusted: whatever came back is tried as JSON.
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		s.log.Warn().Err(err).Str("content_type", resp.Header.Get("Content-Type")).Msg("stats source answered with non-JSON body")
		raw = nil
	}

	rows, shape := normalize.Match(raw)
	s.log.Debug().Str("shape", shape).Int("rows", len(rows)).Msg("stats source normalized")
	return rows, nil
}

// endpoint forwards days and slug, keeping any query already on the base URL.
func (s *HTTPSource) endpoint(q domain.StatsQuery) (string, error) {
	if s.baseURL == "" {
		return "", &domain.ConfigError{Missing: "STATS_SOURCE_URL"}
	}
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse stats source url: %w", err)
	}
	params := u.Query()
	params.Set("days", strconv.Itoa(q.Days))
	if q.Slug != "" {
		params.Set("slug", q.Slug)
	} else {
		params.Del("slug")
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

var _ ports.StatsSource = (*HTTPSource)(nil)
