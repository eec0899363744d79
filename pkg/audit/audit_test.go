package audit_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/audit"
	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]audit.Entry
	err     error
	block   chan struct{}
}

func (r *recorder) StoreBatch(ctx context.Context, entries []audit.Entry) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]audit.Entry(nil), entries...))
	return r.err
}

func (r *recorder) entries() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Entry
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *recorder) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func event(i int) tracker.Event {
	return tracker.Event{
		ID:       "ev-" + string(rune('a'+i)),
		Key:      tracker.Key{RequestID: "req-1", RecipientID: "usr-1", Channel: channel.Email},
		Sequence: 1,
		Trigger:  tracker.TriggerFail,
		From:     tracker.StateSending,
		To:       tracker.StateFailed,
		At:       time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC),
	}
}

func TestNewAsyncWriter_NilWriter(t *testing.T) {
	t.Parallel()

	_, err := audit.NewAsyncWriter(nil, audit.Config{})
	assert.ErrorIs(t, err, audit.ErrNilWriter)
}

func TestAsyncWriter_BatchesBySize(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	w, err := audit.NewAsyncWriter(rec, audit.Config{BatchSize: 3, BatchTimeout: time.Hour, Service: "dispatchd"},
		audit.WithLogger(logger.Discard()))
	require.NoError(t, err)

	for i := range 6 {
		w.Record(context.Background(), event(i))
	}
	require.Eventually(t, func() bool { return rec.batchCount() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Close(context.Background()))

	got := rec.entries()
	require.Len(t, got, 6)
	for _, e := range got {
		assert.Equal(t, "dispatchd", e.Service)
		assert.True(t, e.Verify())
	}
}

func TestAsyncWriter_FlushesOnTimeoutAndClose(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	w, err := audit.NewAsyncWriter(rec, audit.Config{BatchSize: 100, BatchTimeout: 20 * time.Millisecond},
		audit.WithLogger(logger.Discard()))
	require.NoError(t, err)

	w.Record(context.Background(), event(0))
	require.Eventually(t, func() bool { return len(rec.entries()) == 1 }, time.Second, 5*time.Millisecond)

	w.Record(context.Background(), event(1))
	require.NoError(t, w.Close(context.Background()))
	assert.Len(t, rec.entries(), 2)

	assert.ErrorIs(t, w.Close(context.Background()), audit.ErrClosed)

	// Dropped after close.
	w.Record(context.Background(), event(2))
	assert.Len(t, rec.entries(), 2)
}

func TestAsyncWriter_FullBufferWritesSynchronously(t *testing.T) {
	t.Parallel()

	rec := &recorder{block: make(chan struct{})}
	w, err := audit.NewAsyncWriter(rec, audit.Config{BufferSize: 1, BatchSize: 1, BatchTimeout: time.Hour},
		audit.WithLogger(logger.Discard()))
	require.NoError(t, err)

	// With the worker stuck in StoreBatch the buffer fills and further
	// records fall back to synchronous writes, which also wait on storage.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 5 {
			w.Record(context.Background(), event(i))
		}
	}()
	time.Sleep(20 * time.Millisecond)
	close(rec.block)
	<-done

	require.NoError(t, w.Close(context.Background()))
	assert.Len(t, rec.entries(), 5)
}

func TestAsyncWriter_StoreErrorIsLogged(t *testing.T) {
	t.Parallel()

	rec := &recorder{err: errors.New("cluster unavailable")}
	w, err := audit.NewAsyncWriter(rec, audit.Config{BatchSize: 1}, audit.WithLogger(logger.Discard()))
	require.NoError(t, err)

	w.Record(context.Background(), event(0))
	require.NoError(t, w.Close(context.Background()))
	assert.Len(t, rec.entries(), 1)
}

func TestAsyncWriter_RedactsErrors(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	w, err := audit.NewAsyncWriter(rec, audit.Config{}, audit.WithLogger(logger.Discard()))
	require.NoError(t, err)

	ev := event(0)
	ev.Error = "invalid address jane@example.com"
	w.Record(context.Background(), ev)
	require.NoError(t, w.Close(context.Background()))

	got := rec.entries()
	require.Len(t, got, 1)
	assert.NotContains(t, got[0].Error, "jane@example.com")
	assert.True(t, strings.HasPrefix(got[0].Error, "invalid address sha256:"))
	assert.True(t, got[0].Verify())
}

func TestEntry_Verify(t *testing.T) {
	t.Parallel()

	e := audit.NewEntry(event(0), "svc")
	assert.True(t, e.Verify())

	e.To = tracker.StateSent
	assert.False(t, e.Verify())
}

func TestRedactor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    audit.Redactor
		in   string
		want string
	}{
		{"empty", audit.DefaultRedactor(), "", ""},
		{"phone masked", audit.DefaultRedactor(), "opted out: +14155550123", "opted out: ********0123"},
		{"email removed", audit.Redactor{Emails: audit.RedactRemove}, "bounce for a.b@example.org", "bounce for [redacted]"},
		{"credentials", audit.Redactor{}, "auth failed token=abc123 for x", "auth failed token=[redacted] for x"},
		{"untouched", audit.DefaultRedactor(), "status 503", "status 503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.r.Redact(tt.in))
		})
	}
}
