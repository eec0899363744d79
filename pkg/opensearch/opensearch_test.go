package opensearch_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/audit"
	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/opensearch"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

func newClient(t *testing.T, h http.Handler) *opensearchgo.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client, err := opensearchgo.NewClient(opensearchgo.Config{Addresses: []string{srv.URL}, DisableRetry: true})
	require.NoError(t, err)
	return client
}

func entry(id string, at time.Time) audit.Entry {
	return audit.NewEntry(tracker.Event{
		ID:      id,
		Key:     tracker.Key{RequestID: "req-1", RecipientID: "usr-1", Channel: channel.SMS},
		Trigger: tracker.TriggerAck,
		From:    tracker.StateSending,
		To:      tracker.StateSent,
		At:      at,
	}, "dispatchd")
}

func TestEventWriter_StoreBatch(t *testing.T) {
	t.Parallel()

	bodies := make(chan []byte, 1)
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_bulk", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		_, _ = w.Write([]byte(`{"took":3,"errors":false,"items":[]}`))
	}))

	w := opensearch.NewEventWriter(client, "events")
	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	err := w.StoreBatch(context.Background(), []audit.Entry{
		entry("ev-1", day),
		entry("ev-2", day.Add(2*time.Minute)),
	})
	require.NoError(t, err)

	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(<-bodies))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 4)

	first := lines[0]["index"].(map[string]any)
	assert.Equal(t, "events-2026.03.01", first["_index"])
	assert.Equal(t, "ev-1", first["_id"])
	assert.Equal(t, "req-1", lines[1]["request_id"])
	assert.Equal(t, "dispatchd", lines[1]["service"])
	assert.NotEmpty(t, lines[1]["hash"])

	second := lines[2]["index"].(map[string]any)
	assert.Equal(t, "events-2026.03.02", second["_index"])
}

func TestEventWriter_StoreBatch_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"item failure", http.StatusOK, `{"errors":true,"items":[{"index":{"_id":"ev-1","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}]}`},
		{"request failure", http.StatusServiceUnavailable, `{"error":"unavailable"}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			err := opensearch.NewEventWriter(client, "").StoreBatch(context.Background(), []audit.Entry{entry("ev-1", time.Now())})
			assert.ErrorIs(t, err, opensearch.ErrBulkFailed)
		})
	}
}

func TestEventWriter_EmptyBatch(t *testing.T) {
	t.Parallel()

	w := opensearch.NewEventWriter(nil, "")
	assert.NoError(t, w.StoreBatch(context.Background(), nil))
	assert.Equal(t, "dispatch-events-2026.03.01", w.Index(entry("x", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))))
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"version":{"number":"2.11.0","distribution":"opensearch"}}`))
		}))
		assert.NoError(t, opensearch.Healthcheck(client)(context.Background()))
	})

	t.Run("unhealthy", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		assert.ErrorIs(t, opensearch.Healthcheck(client)(context.Background()), opensearch.ErrHealthcheckFailed)
	})
}
