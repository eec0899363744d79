package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/preference"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
	"github.com/dmitrymomot/dispatchkit/pkg/render"
	"github.com/dmitrymomot/dispatchkit/pkg/retry"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

// adapter records every send and fails according to fn.
type adapter struct {
	mu    sync.Mutex
	calls map[string]int
	times []time.Time
	fn    func(msg channel.Message, call int) error
}

func newAdapter(fn func(msg channel.Message, call int) error) *adapter {
	return &adapter{calls: make(map[string]int), fn: fn}
}

func (a *adapter) Send(_ context.Context, msg channel.Message) (channel.Receipt, error) {
	a.mu.Lock()
	a.calls[msg.RecipientID]++
	n := a.calls[msg.RecipientID]
	a.times = append(a.times, time.Now())
	a.mu.Unlock()

	if a.fn != nil {
		if err := a.fn(msg, n); err != nil {
			return channel.Receipt{}, err
		}
	}
	return channel.Receipt{ProviderRef: "ref-" + msg.RecipientID}, nil
}

func (a *adapter) Calls(recipient string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[recipient]
}

func (a *adapter) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.times)
}

func (a *adapter) Times() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Time(nil), a.times...)
}

// batchAdapter is an adapter whose provider accepts several messages at once.
type batchAdapter struct {
	*adapter
	bmu     sync.Mutex
	batches []int
}

func (b *batchAdapter) SendBatch(ctx context.Context, msgs []channel.Message) []channel.Result {
	b.bmu.Lock()
	b.batches = append(b.batches, len(msgs))
	b.bmu.Unlock()

	out := make([]channel.Result, len(msgs))
	for i, m := range msgs {
		r, err := b.Send(ctx, m)
		out[i] = channel.Result{Receipt: r, Err: err}
	}
	return out
}

func (b *batchAdapter) Batches() []int {
	b.bmu.Lock()
	defer b.bmu.Unlock()
	return append([]int(nil), b.batches...)
}

func quickPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{MaxAttempts: maxAttempts, BaseDelay: 5 * time.Millisecond, Multiplier: 1}
}

type harness struct {
	d        *dispatch.Dispatcher
	tr       *tracker.Tracker
	prefs    *preference.MemorySource
	channels *channel.Registry
}

func testConfig() dispatch.Config {
	return dispatch.Config{
		Workers:          4,
		Expanders:        2,
		BatchWindow:      10 * time.Millisecond,
		SendTimeout:      time.Second,
		ExpandRetryDelay: 20 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	}
}

func newHarness(t *testing.T, channels []channel.Channel, opts ...dispatch.Option) *harness {
	t.Helper()
	return newHarnessWithTracker(t, nil, channels, opts...)
}

func newHarnessWithTracker(t *testing.T, trackerOpts []tracker.Option, channels []channel.Channel, opts ...dispatch.Option) *harness {
	t.Helper()

	reg := channel.NewRegistry()
	for _, ch := range channels {
		require.NoError(t, reg.Register(ch))
	}

	renderer := render.New()
	require.NoError(t, renderer.Register(render.Template{
		Name:     "alert",
		Required: []string{"name"},
		Email:    &render.EmailTemplate{Subject: "Hi {{.name}}", HTML: "<p>Hello {{.name}}</p>"},
		SMS:      &render.SMSTemplate{Text: "Hello {{.name}}"},
	}))

	prefs := preference.NewMemorySource()
	tr := tracker.New(tracker.NewMemoryStore(), append([]tracker.Option{
		tracker.WithPolicies(reg),
		tracker.WithLogger(logger.Discard()),
	}, trackerOpts...)...)
	t.Cleanup(func() { _ = tr.Close() })

	base := []dispatch.Option{
		dispatch.WithConfig(testConfig()),
		dispatch.WithLogger(logger.Discard()),
	}
	d := dispatch.New(tr, reg, preference.NewResolver(prefs, reg.Names), renderer, append(base, opts...)...)
	require.NoError(t, d.RegisterType(dispatch.NotificationType{Name: "alert"}))

	return &harness{d: d, tr: tr, prefs: prefs, channels: reg}
}

func (h *harness) addRecipient(id string, optOut bool) {
	h.prefs.Put(preference.Profile{
		RecipientID: id,
		OptOut:      optOut,
		Addresses: map[channel.Name]string{
			channel.Email: id + "@example.com",
			channel.SMS:   "+15550000000",
		},
		Defaults: map[channel.Name]bool{channel.Email: true},
	})
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func (h *harness) waitDone(t *testing.T, id string) tracker.Report {
	t.Helper()
	var rep tracker.Report
	require.Eventually(t, func() bool {
		r, err := h.d.Status(context.Background(), id)
		if err != nil {
			return false
		}
		rep = r
		return r.Done()
	}, 5*time.Second, 5*time.Millisecond)
	return rep
}

func emailChannel(a channel.Adapter, maxAttempts int) channel.Channel {
	return channel.Channel{Name: channel.Email, Adapter: a, MaxBatchSize: 1, Retry: quickPolicy(maxAttempts)}
}

func TestDispatcher_MixedRecipients(t *testing.T) {
	t.Parallel()

	a := newAdapter(func(msg channel.Message, call int) error {
		if msg.RecipientID == "flaky" && call <= 2 {
			return errors.New("upstream returned 503")
		}
		return nil
	})
	h := newHarness(t, []channel.Channel{emailChannel(a, 3)})
	h.addRecipient("opted-out", true)
	h.addRecipient("flaky", false)
	h.addRecipient("steady", false)
	h.run(t)

	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:       "alert",
		Recipients: []string{"opted-out", "flaky", "steady"},
		Context:    map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.False(t, handle.Duplicate)

	rep := h.waitDone(t, handle.RequestID)
	assert.Equal(t, tracker.RequestCompleted, rep.State)

	opted, ok := rep.Recipient("opted-out")
	require.True(t, ok)
	assert.Equal(t, tracker.OutcomeNoEligibleChannel, opted.Outcome)
	assert.Empty(t, opted.Channels)
	assert.Zero(t, a.Calls("opted-out"))

	flaky, ok := rep.Recipient("flaky")
	require.True(t, ok)
	fe, ok := flaky.Channel(channel.Email)
	require.True(t, ok)
	assert.Equal(t, tracker.StateSent, fe.State)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, 3, a.Calls("flaky"))

	steady, ok := rep.Recipient("steady")
	require.True(t, ok)
	se, ok := steady.Channel(channel.Email)
	require.True(t, ok)
	assert.Equal(t, tracker.StateSent, se.State)
	assert.Equal(t, 1, se.Attempts)
	assert.Equal(t, "ref-steady", se.ProviderRef)
	assert.Equal(t, 1, a.Calls("steady"))
}

func TestDispatcher_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantCalls int
		wantState tracker.State
		wantKind  tracker.OutcomeKind
		wantClass channel.ErrorClass
	}{
		{
			name:      "permanent error is not retried",
			err:       channel.Permanent(errors.New("invalid address")),
			wantCalls: 1,
			wantState: tracker.StateDead,
			wantKind:  tracker.OutcomePermanentFailure,
			wantClass: channel.ClassPermanent,
		},
		{
			name:      "transient error until exhausted",
			err:       errors.New("connection reset"),
			wantCalls: 3,
			wantState: tracker.StateDead,
			wantKind:  tracker.OutcomeRetryExhausted,
			wantClass: channel.ClassTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newAdapter(func(channel.Message, int) error { return tt.err })
			h := newHarness(t, []channel.Channel{emailChannel(a, 3)})
			h.addRecipient("r1", false)
			h.run(t)

			handle, err := h.d.Submit(context.Background(), dispatch.Request{
				Type:       "alert",
				Recipients: []string{"r1"},
				Context:    map[string]any{"name": "Ada"},
			})
			require.NoError(t, err)

			rep := h.waitDone(t, handle.RequestID)
			rec, _ := rep.Recipient("r1")
			cr, ok := rec.Channel(channel.Email)
			require.True(t, ok)
			assert.Equal(t, tt.wantState, cr.State)
			assert.Equal(t, tt.wantKind, cr.Outcome)
			assert.Equal(t, tt.wantClass, cr.ErrorClass)
			assert.Equal(t, tt.wantCalls, cr.Attempts)

			// No further send is scheduled after the terminal state.
			time.Sleep(50 * time.Millisecond)
			assert.Equal(t, tt.wantCalls, a.Calls("r1"))
		})
	}
}

func TestDispatcher_RenderError(t *testing.T) {
	t.Parallel()

	a := newAdapter(nil)
	h := newHarness(t, []channel.Channel{emailChannel(a, 3)})
	h.addRecipient("r1", false)
	h.addRecipient("r2", false)
	h.run(t)

	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:       "alert",
		Recipients: []string{"r1", "r2"},
		Context:    map[string]any{"other": "x"},
	})
	require.NoError(t, err)

	rep := h.waitDone(t, handle.RequestID)
	assert.Equal(t, tracker.RequestCompleted, rep.State)
	for _, id := range []string{"r1", "r2"} {
		rec, ok := rep.Recipient(id)
		require.True(t, ok)
		cr, ok := rec.Channel(channel.Email)
		require.True(t, ok)
		assert.Equal(t, tracker.OutcomeRenderError, cr.Outcome)
		assert.Empty(t, cr.State)
		assert.Contains(t, cr.LastError, "name")
	}
	assert.Zero(t, a.Total())
}

func TestDispatcher_RecipientNotFound(t *testing.T) {
	t.Parallel()

	a := newAdapter(nil)
	h := newHarness(t, []channel.Channel{emailChannel(a, 3)})
	h.addRecipient("known", false)
	h.run(t)

	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:       "alert",
		Recipients: []string{"ghost", "known"},
		Context:    map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	rep := h.waitDone(t, handle.RequestID)
	ghost, _ := rep.Recipient("ghost")
	assert.Equal(t, tracker.OutcomeRecipientNotFound, ghost.Outcome)
	known, _ := rep.Recipient("known")
	cr, ok := known.Channel(channel.Email)
	require.True(t, ok)
	assert.Equal(t, tracker.StateSent, cr.State)
}

func TestDispatcher_Idempotency(t *testing.T) {
	t.Parallel()

	a := newAdapter(nil)
	h := newHarness(t, []channel.Channel{emailChannel(a, 3)})
	h.addRecipient("r1", false)
	ctx := context.Background()

	req := dispatch.Request{
		IdempotencyKey: "order-7",
		Type:           "alert",
		Recipients:     []string{"r1"},
		Context:        map[string]any{"name": "Ada"},
	}
	first, err := h.d.Submit(ctx, req)
	require.NoError(t, err)
	second, err := h.d.Submit(ctx, req)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.RequestID, second.RequestID)

	h.run(t)
	h.waitDone(t, first.RequestID)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, a.Calls("r1"))

	third, err := h.d.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.Duplicate)
	assert.NotEqual(t, first.RequestID, third.RequestID)
}

func TestDispatcher_Validation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []channel.Channel{emailChannel(newAdapter(nil), 3)})
	require.NoError(t, h.d.RegisterType(dispatch.NotificationType{Name: "broken", Template: "missing"}))
	require.NoError(t, h.d.RegisterType(dispatch.NotificationType{
		Name:     "signup",
		Template: "alert",
		Schema:   `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`,
	}))

	tests := []struct {
		name      string
		req       dispatch.Request
		wantField string
		unknown   bool
	}{
		{
			name:      "no recipients",
			req:       dispatch.Request{Type: "alert"},
			wantField: "recipients",
		},
		{
			name:      "empty recipient id",
			req:       dispatch.Request{Type: "alert", Recipients: []string{"r1", ""}},
			wantField: "recipients[1]",
		},
		{
			name:      "missing type",
			req:       dispatch.Request{Recipients: []string{"r1"}},
			wantField: "type",
		},
		{
			name:      "unknown type",
			req:       dispatch.Request{Type: "nope", Recipients: []string{"r1"}},
			wantField: "type",
			unknown:   true,
		},
		{
			name:      "template does not exist",
			req:       dispatch.Request{Type: "broken", Recipients: []string{"r1"}},
			wantField: "template",
		},
		{
			name:      "unregistered channel",
			req:       dispatch.Request{Type: "alert", Recipients: []string{"r1"}, Channels: []channel.Name{channel.Push}},
			wantField: "channels",
		},
		{
			name:      "context fails schema",
			req:       dispatch.Request{Type: "signup", Recipients: []string{"r1"}, Context: map[string]any{"name": 42}},
			wantField: "context",
		},
	}

	t.Cleanup(func() {
		pending, err := h.tr.Pending(context.Background())
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := h.d.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, dispatch.ErrInvalidRequest)
			if tt.unknown {
				assert.ErrorIs(t, err, dispatch.ErrUnknownType)
			}

			var ire *dispatch.InvalidRequestError
			require.ErrorAs(t, err, &ire)
			found := false
			for _, f := range ire.Fields {
				if strings.HasPrefix(f.Field, tt.wantField) {
					found = true
				}
			}
			assert.True(t, found, "fields: %+v", ire.Fields)
		})
	}
}

func TestDispatcher_ScheduledFor(t *testing.T) {
	t.Parallel()

	a := newAdapter(nil)
	h := newHarness(t, []channel.Channel{emailChannel(a, 3)})
	h.addRecipient("r1", false)
	h.run(t)

	at := time.Now().Add(200 * time.Millisecond)
	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:         "alert",
		Recipients:   []string{"r1"},
		Context:      map[string]any{"name": "Ada"},
		ScheduledFor: at,
	})
	require.NoError(t, err)
	assert.Equal(t, tracker.RequestPending, handle.State)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, a.Total())

	h.waitDone(t, handle.RequestID)
	times := a.Times()
	require.Len(t, times, 1)
	assert.False(t, times[0].Before(at))
}

func TestDispatcher_Cancel(t *testing.T) {
	t.Parallel()

	a := newAdapter(nil)
	h := newHarness(t, []channel.Channel{emailChannel(a, 3)})
	h.addRecipient("r1", false)
	h.run(t)
	ctx := context.Background()

	handle, err := h.d.Submit(ctx, dispatch.Request{
		Type:         "alert",
		Recipients:   []string{"r1"},
		Context:      map[string]any{"name": "Ada"},
		ScheduledFor: time.Now().Add(100 * time.Millisecond),
	})
	require.NoError(t, err)
	require.NoError(t, h.d.Cancel(ctx, handle.RequestID))

	rep, err := h.d.Status(ctx, handle.RequestID)
	require.NoError(t, err)
	assert.Equal(t, tracker.RequestCancelled, rep.State)
	assert.True(t, rep.Done())

	err = h.d.Cancel(ctx, handle.RequestID)
	assert.ErrorIs(t, err, tracker.ErrRequestFinished)

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, a.Total())
}

func TestDispatcher_NoDoubleSend(t *testing.T) {
	t.Parallel()

	a := newAdapter(nil)
	ba := &batchAdapter{adapter: a}
	h := newHarness(t, []channel.Channel{{
		Name:         channel.Email,
		Adapter:      ba,
		MaxBatchSize: 10,
		Retry:        quickPolicy(3),
	}})

	recipients := make([]string, 60)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("r%02d", i)
		h.addRecipient(recipients[i], false)
	}
	h.run(t)

	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:       "alert",
		Recipients: recipients,
		Context:    map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	// Recovery reschedules queued attempts that workers may already hold.
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.d.Recover(context.Background())
		}()
	}
	wg.Wait()

	h.waitDone(t, handle.RequestID)
	for _, r := range recipients {
		assert.Equal(t, 1, a.Calls(r), r)
	}
	for _, n := range ba.Batches() {
		assert.LessOrEqual(t, n, 10)
	}
}

func TestDispatcher_PartialBatchFailure(t *testing.T) {
	t.Parallel()

	a := newAdapter(func(msg channel.Message, _ int) error {
		if msg.RecipientID == "bad" {
			return channel.Permanent(errors.New("mailbox does not exist"))
		}
		return nil
	})
	ba := &batchAdapter{adapter: a}
	h := newHarness(t, []channel.Channel{{
		Name:         channel.Email,
		Adapter:      ba,
		MaxBatchSize: 3,
		Retry:        quickPolicy(3),
	}})
	for _, id := range []string{"a", "bad", "c"} {
		h.addRecipient(id, false)
	}
	h.run(t)

	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:       "alert",
		Recipients: []string{"a", "bad", "c"},
		Context:    map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	rep := h.waitDone(t, handle.RequestID)
	for _, id := range []string{"a", "c"} {
		rec, _ := rep.Recipient(id)
		cr, ok := rec.Channel(channel.Email)
		require.True(t, ok)
		assert.Equal(t, tracker.StateSent, cr.State, id)
	}
	bad, _ := rep.Recipient("bad")
	cr, ok := bad.Channel(channel.Email)
	require.True(t, ok)
	assert.Equal(t, tracker.StateDead, cr.State)
	assert.Equal(t, 1, a.Calls("bad"))
}

func TestDispatcher_RateLimit(t *testing.T) {
	t.Parallel()

	const (
		capacity = 5
		refill   = 5
		interval = 100 * time.Millisecond
		total    = 20
	)

	a := newAdapter(nil)
	store := ratelimiter.NewMemoryStore()
	t.Cleanup(store.Close)
	h := newHarness(t, []channel.Channel{{
		Name:         channel.Email,
		Adapter:      a,
		MaxBatchSize: 1,
		Retry:        quickPolicy(3),
		RateLimit:    &ratelimiter.Config{Capacity: capacity, RefillRate: refill, RefillInterval: interval},
	}}, dispatch.WithLimiter(ratelimiter.NewLimiter(store)))

	recipients := make([]string, total)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("r%02d", i)
		h.addRecipient(recipients[i], false)
	}
	h.run(t)

	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:       "alert",
		Recipients: recipients,
		Context:    map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	rep := h.waitDone(t, handle.RequestID)
	for _, r := range recipients {
		rec, _ := rep.Recipient(r)
		cr, ok := rec.Channel(channel.Email)
		require.True(t, ok)
		assert.Equal(t, tracker.StateSent, cr.State)
		// Local rate limiting never charges the retry budget.
		assert.Equal(t, 1, cr.Attempts)
	}

	times := a.Times()
	require.Len(t, times, total)
	for i, start := range times {
		n := 0
		for _, ts := range times[i:] {
			if ts.Sub(start) < interval {
				n++
			}
		}
		assert.LessOrEqual(t, n, capacity+refill)
	}
}

func TestDispatcher_ResumesPersistedRequests(t *testing.T) {
	t.Parallel()

	a := newAdapter(nil)
	h := newHarness(t, []channel.Channel{emailChannel(a, 3)})
	h.addRecipient("r1", false)

	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:       "alert",
		Recipients: []string{"r1"},
		Context:    map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	// A second dispatcher over the same tracker stands in for a restarted
	// process: it only knows what the store holds.
	renderer := render.New()
	require.NoError(t, renderer.Register(render.Template{
		Name:  "alert",
		Email: &render.EmailTemplate{Subject: "Hi {{.name}}", HTML: "<p>Hello {{.name}}</p>"},
	}))
	restarted := dispatch.New(h.tr, h.channels, preference.NewResolver(h.prefs, h.channels.Names), renderer,
		dispatch.WithConfig(testConfig()),
		dispatch.WithLogger(logger.Discard()),
	)
	(&harness{d: restarted}).run(t)

	(&harness{d: restarted}).waitDone(t, handle.RequestID)
	assert.Equal(t, 1, a.Calls("r1"))
}

func TestDispatcher_RunTwice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []channel.Channel{emailChannel(newAdapter(nil), 3)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.d.Run(ctx))
	assert.ErrorIs(t, h.d.Run(ctx), dispatch.ErrAlreadyRunning)
}

func TestDispatcher_SendTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	blocking := channel.AdapterFunc(func(ctx context.Context, _ channel.Message) (channel.Receipt, error) {
		calls.Add(1)
		<-ctx.Done()
		return channel.Receipt{}, ctx.Err()
	})
	ch := channel.Channel{
		Name:         channel.Email,
		Adapter:      blocking,
		MaxBatchSize: 1,
		Timeout:      20 * time.Millisecond,
		Retry:        quickPolicy(3),
	}
	h := newHarness(t, []channel.Channel{ch})
	h.addRecipient("r1", false)
	h.run(t)

	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:       "alert",
		Recipients: []string{"r1"},
		Context:    map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	rep := h.waitDone(t, handle.RequestID)
	rec, _ := rep.Recipient("r1")
	cr, ok := rec.Channel(channel.Email)
	require.True(t, ok)
	assert.Equal(t, tracker.StateDead, cr.State)
	assert.Equal(t, tracker.OutcomeRetryExhausted, cr.Outcome)
	assert.Equal(t, channel.ClassTransient, cr.ErrorClass)
	assert.Contains(t, cr.LastError, context.DeadlineExceeded.Error())
	assert.Equal(t, 3, cr.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDispatcher_LeaseOutlivesSlowSend(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	a := newAdapter(func(channel.Message, int) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(300 * time.Millisecond)
		return nil
	})
	ch := emailChannel(a, 3)
	ch.Timeout = 2 * time.Second

	// The configured lease is far shorter than the channel timeout.
	h := newHarnessWithTracker(t, []tracker.Option{tracker.WithLease(50 * time.Millisecond)}, []channel.Channel{ch})
	h.addRecipient("r1", false)
	h.run(t)

	ctx, stop := context.WithCancel(context.Background())
	sweeps := make(chan struct{})
	go func() {
		defer close(sweeps)
		tick := time.NewTicker(40 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				_ = h.d.Recover(ctx)
			}
		}
	}()

	handle, err := h.d.Submit(context.Background(), dispatch.Request{
		Type:       "alert",
		Recipients: []string{"r1"},
		Context:    map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	rep := h.waitDone(t, handle.RequestID)
	stop()
	<-sweeps

	rec, _ := rep.Recipient("r1")
	cr, ok := rec.Channel(channel.Email)
	require.True(t, ok)
	assert.Equal(t, tracker.StateSent, cr.State)
	assert.Equal(t, 1, cr.Attempts)
	assert.Equal(t, 1, a.Calls("r1"))
	assert.EqualValues(t, 1, peak.Load())
}
