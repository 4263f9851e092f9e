package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
)

type countingTransport struct {
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, io.ErrUnexpectedEOF
}

func testEvent() domain.ScanEvent {
	return domain.ScanEvent{
		ID:          "evt-1",
		Timestamp:   time.Date(2026, 10, 15, 13, 4, 5, 0, time.UTC),
		Slug:        "landing",
		Destination: "https://www.example.com",
		IPTruncated: "203.0.113.0",
		UserAgent:   "Mozilla/5.0",
		Referer:     "",
		Country:     "AR",
		Region:      "B",
		City:        "La Plata",
		Method:      http.MethodGet,
	}
}

func TestEmitWithoutSinkMakesNoCall(t *testing.T) {
	tr := &countingTransport{}
	e := NewEmitter(Config{Budget: MaxBudget, Client: &http.Client{Transport: tr}}, zerolog.Nop(), nil)

	e.Emit(context.Background(), testEvent())
	e.Wait()

	assert.Equal(t, int32(0), tr.calls.Load())
}

func TestEmitPostsEventJSON(t *testing.T) {
	type captured struct {
		contentType string
		body        map[string]any
	}
	got := make(chan captured, 1)

	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- captured{contentType: r.Header.Get("Content-Type"), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer sink.Close()

	e := NewEmitter(Config{SinkURL: sink.URL, Budget: MaxBudget, Client: sink.Client()}, zerolog.Nop(), nil)
	e.Emit(context.Background(), testEvent())

	select {
	case c := <-got:
		assert.Equal(t, "application/json", c.contentType)
		for _, key := range []string{"ts", "slug", "dest", "ip_truncated", "ua", "ref", "country", "region", "city"} {
			assert.Contains(t, c.body, key)
		}
		assert.Equal(t, "landing", c.body["slug"])
		assert.Equal(t, "203.0.113.0", c.body["ip_truncated"])
		assert.Equal(t, "2026-10-15T13:04:05Z", c.body["ts"])
	case <-time.After(time.Second):
		t.Fatal("sink never received the event")
	}
}

func TestEmitSendsSinkToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"with token", "s3cret", "s3cret"},
		{"without token", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(chan string, 1)
			present := make(chan bool, 1)
			sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, ok := r.Header[http.CanonicalHeaderKey(domain.TokenHeader)]
				present <- ok
				got <- r.Header.Get(domain.TokenHeader)
				w.WriteHeader(http.StatusAccepted)
			}))
			defer sink.Close()

			e := NewEmitter(Config{SinkURL: sink.URL, SinkToken: tt.token, Budget: MaxBudget, Client: sink.Client()}, zerolog.Nop(), nil)
			e.Emit(context.Background(), testEvent())

			require.Equal(t, tt.token != "", <-present)
			assert.Equal(t, tt.want, <-got)
		})
	}
}

func TestEmitBoundedWaitReturnsWithinBudget(t *testing.T) {
	release := make(chan struct{})
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer sink.Close()
	defer close(release)

	budget := 150 * time.Millisecond
	e := NewEmitter(Config{SinkURL: sink.URL, Budget: budget, Client: sink.Client()}, zerolog.Nop(), nil)

	start := time.Now()
	e.Emit(context.Background(), testEvent())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, budget-10*time.Millisecond)
	assert.Less(t, elapsed, budget+200*time.Millisecond)
}

func TestEmitBudgetIsCapped(t *testing.T) {
	e := NewEmitter(Config{SinkURL: "http://sink.invalid", Budget: 3 * time.Second}, zerolog.Nop(), nil)
	assert.Equal(t, MaxBudget, e.Budget())

	e = NewEmitter(Config{SinkURL: "http://sink.invalid", Budget: -time.Second}, zerolog.Nop(), nil)
	assert.Equal(t, time.Duration(0), e.Budget())
}

func TestEmitFireAndForgetDoesNotWait(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer sink.Close()

	e := NewEmitter(Config{SinkURL: sink.URL, Budget: 0, Client: sink.Client()}, zerolog.Nop(), nil)

	start := time.Now()
	e.Emit(context.Background(), testEvent())
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	close(release)
	e.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestEmitAbsorbsSinkFailures(t *testing.T) {
	var hits atomic.Int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer failing.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	for _, sinkURL := range []string{failing.URL, closedURL} {
		e := NewEmitter(Config{SinkURL: sinkURL, Budget: MaxBudget}, zerolog.Nop(), nil)
		require.NotPanics(t, func() {
			e.Emit(context.Background(), testEvent())
		})
	}

	// One attempt per event, no retry after the 502.
	assert.Equal(t, int32(1), hits.Load())
}

func TestEmitIgnoresCancelledRequestContext(t *testing.T) {
	got := make(chan struct{}, 1)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- struct{}{}
	}))
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEmitter(Config{SinkURL: sink.URL, Budget: MaxBudget, Client: sink.Client()}, zerolog.Nop(), nil)
	e.Emit(ctx, testEvent())

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("event was dropped with the request context")
	}
}
