package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/webhook"
)

func webhookMessage(to string) channel.Message {
	return channel.Message{
		ID:          "req-1/usr-1/webhook",
		RequestID:   "req-1",
		RecipientID: "usr-1",
		Type:        "user_created",
		To:          to,
		Payload: channel.WebhookPayload{
			Event: "user.created",
			Data:  map[string]any{"user_id": "usr-1"},
		},
	}
}

type captured struct {
	header http.Header
	body   []byte
}

// capture records each request on out and answers with status.
func capture(out chan<- captured, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		out <- captured{header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
	})
}

func TestAdapter_Send(t *testing.T) {
	t.Parallel()

	clk := newClock()
	requests := make(chan captured, 1)
	srv := httptest.NewServer(capture(requests, http.StatusNoContent))
	t.Cleanup(srv.Close)

	a := webhook.New(
		webhook.WithSignature("s3cret"),
		webhook.WithHeader("X-Tenant", "acme"),
		webhook.WithClock(clk.Now),
	)
	receipt, err := a.Send(context.Background(), webhookMessage(srv.URL+"/hooks"))
	require.NoError(t, err)
	assert.Equal(t, "req-1/usr-1/webhook", receipt.ProviderRef)

	req := <-requests
	gotBody, gotHeaders := req.body, req.header
	var env webhook.Envelope
	require.NoError(t, json.Unmarshal(gotBody, &env))
	assert.Equal(t, "req-1/usr-1/webhook", env.ID)
	assert.Equal(t, "user.created", env.Event)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, "usr-1", env.RecipientID)
	assert.Equal(t, "user_created", env.Type)
	assert.True(t, clk.Now().Equal(env.OccurredAt))
	assert.Equal(t, "usr-1", env.Data["user_id"])

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "acme", gotHeaders.Get("X-Tenant"))
	assert.Equal(t, "req-1/usr-1/webhook", gotHeaders.Get("Idempotency-Key"))

	sig, err := webhook.ExtractSignatureHeaders(gotHeaders)
	require.NoError(t, err)
	assert.Equal(t, "req-1/usr-1/webhook", sig.ID)
	assert.NoError(t, webhook.Verify("s3cret", gotBody, sig, time.Minute, clk.Now()))
}

func TestAdapter_Send_EventDefaultsToType(t *testing.T) {
	t.Parallel()

	requests := make(chan captured, 1)
	srv := httptest.NewServer(capture(requests, http.StatusOK))
	t.Cleanup(srv.Close)

	msg := webhookMessage(srv.URL)
	msg.Payload = channel.WebhookPayload{}
	_, err := webhook.New().Send(context.Background(), msg)
	require.NoError(t, err)

	var env webhook.Envelope
	require.NoError(t, json.Unmarshal((<-requests).body, &env))
	assert.Equal(t, "user_created", env.Event)
}

func TestAdapter_Send_StatusClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		retryAfter string
		want       channel.ErrorClass
		wantWait   time.Duration
	}{
		{"too many requests", http.StatusTooManyRequests, "7", channel.ClassThrottled, 7 * time.Second},
		{"too many requests without hint", http.StatusTooManyRequests, "", channel.ClassThrottled, 0},
		{"request timeout", http.StatusRequestTimeout, "", channel.ClassTransient, 0},
		{"too early", http.StatusTooEarly, "", channel.ClassTransient, 0},
		{"server error", http.StatusBadGateway, "", channel.ClassTransient, 0},
		{"bad request", http.StatusBadRequest, "", channel.ClassPermanent, 0},
		{"gone", http.StatusGone, "", channel.ClassPermanent, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope\n"))
			}))
			t.Cleanup(srv.Close)

			_, err := webhook.New().Send(context.Background(), webhookMessage(srv.URL))
			require.Error(t, err)
			assert.ErrorIs(t, err, webhook.ErrStatus)
			assert.Equal(t, tt.want, channel.Classify(err))
			assert.Equal(t, tt.wantWait, channel.RetryAfter(err))
		})
	}
}

func TestAdapter_Send_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     channel.Message
		wantErr error
	}{
		{"empty url", webhookMessage(""), webhook.ErrInvalidURL},
		{"non http scheme", webhookMessage("ftp://hooks.example.com"), webhook.ErrInvalidURL},
		{"missing host", webhookMessage("https:///hooks"), webhook.ErrInvalidURL},
		{"wrong payload", channel.Message{To: "https://hooks.example.com", Payload: channel.SMSPayload{Text: "hi"}}, channel.ErrPayloadMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := webhook.New().Send(context.Background(), tt.msg)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, channel.ClassPermanent, channel.Classify(err))
		})
	}
}

func TestAdapter_Send_CircuitBreaker(t *testing.T) {
	t.Parallel()

	clk := newClock()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	a := webhook.New(webhook.WithCircuitBreaker(2, 1, time.Minute), webhook.WithClock(clk.Now))
	msg := webhookMessage(srv.URL)

	for range 2 {
		_, err := a.Send(context.Background(), msg)
		assert.Equal(t, channel.ClassTransient, channel.Classify(err))
	}
	host := strings.TrimPrefix(srv.URL, "http://")
	assert.Equal(t, webhook.CircuitOpen, a.CircuitState(host))

	clk.Advance(15 * time.Second)
	_, err := a.Send(context.Background(), msg)
	assert.ErrorIs(t, err, webhook.ErrCircuitOpen)
	assert.Equal(t, channel.ClassTransient, channel.Classify(err), "an open circuit is a transient failure")
	assert.Contains(t, err.Error(), "retry in 45s")
	assert.Zero(t, channel.RetryAfter(err))
	assert.EqualValues(t, 2, hits.Load())

	clk.Advance(time.Minute)
	_, err = a.Send(context.Background(), msg)
	assert.ErrorIs(t, err, webhook.ErrStatus)
	assert.EqualValues(t, 3, hits.Load())
}

func TestAdapter_Send_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := webhook.New().Send(ctx, webhookMessage(srv.URL))
	require.Error(t, err)
	assert.Equal(t, channel.ClassTransient, channel.Classify(err))
}

func TestConfig_Options(t *testing.T) {
	t.Parallel()

	requests := make(chan captured, 1)
	srv := httptest.NewServer(capture(requests, http.StatusOK))
	t.Cleanup(srv.Close)

	cfg := webhook.Config{SigningSecret: "s3cret", UserAgent: "probe/2.0"}
	_, err := webhook.New(cfg.Options()...).Send(context.Background(), webhookMessage(srv.URL))
	require.NoError(t, err)

	req := <-requests
	assert.NotEmpty(t, req.header.Get(webhook.HeaderSignature))
	assert.Equal(t, "probe/2.0", req.header.Get("User-Agent"))
}
