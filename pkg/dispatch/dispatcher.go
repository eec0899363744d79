package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/dispatchkit/pkg/batch"
	"github.com/dmitrymomot/dispatchkit/pkg/broadcast"
	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/preference"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
	"github.com/dmitrymomot/dispatchkit/pkg/render"
	"github.com/dmitrymomot/dispatchkit/pkg/retry"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

const tracerName = "github.com/dmitrymomot/dispatchkit/pkg/dispatch"

// Dispatcher accepts notification requests and drives every
// (recipient, channel) pair through resolve, render, rate limit, send and
// retry.
type Dispatcher struct {
	tracker  *tracker.Tracker
	channels *channel.Registry
	resolver *preference.Resolver
	renderer *render.Renderer
	types    *Types
	limiter  *ratelimiter.Limiter
	cfg      Config
	log      *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	requests *retry.Scheduler[string]
	ready    *retry.Scheduler[tracker.Key]
	batches  *batch.Coordinator[tracker.Key]

	running atomic.Bool
	wg      sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLimiter gates sends with per-channel token buckets. Channels with a
// RateLimit are configured on it when Run starts.
func WithLimiter(l *ratelimiter.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) { d.cfg = cfg }
}

// WithTypes replaces the notification type registry.
func WithTypes(ts *Types) Option {
	return func(d *Dispatcher) {
		if ts != nil {
			d.types = ts
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New wires a dispatcher. Nothing is sent until Run is called, but Submit
// already validates and persists.
func New(tr *tracker.Tracker, channels *channel.Registry, resolver *preference.Resolver, renderer *render.Renderer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tracker:  tr,
		channels: channels,
		resolver: resolver,
		renderer: renderer,
		types:    NewTypes(),
		cfg:      DefaultConfig(),
		log:      slog.Default(),
		now:      time.Now,
		requests: retry.NewScheduler[string](),
		ready:    retry.NewScheduler[tracker.Key](),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	d.cfg = d.cfg.withDefaults()
	d.log = d.log.With(logger.Component("dispatch"))
	d.batches = batch.New(d.batchSize, d.flush,
		batch.WithWindow(d.cfg.BatchWindow),
		batch.WithLogger(d.log),
	)
	return d
}

// RegisterType adds or replaces an accepted notification type.
func (d *Dispatcher) RegisterType(t NotificationType) error {
	return d.types.Register(t)
}

// Submit validates req, persists it and schedules its expansion. It does not
// wait for delivery. A request whose idempotency key matches an active
// request returns that request's handle with Duplicate set.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (Handle, error) {
	tr, err := d.validate(req)
	if err != nil {
		requestsRejected.WithLabelValues(req.Type).Inc()
		d.log.LogAttrs(ctx, slog.LevelDebug, "request rejected",
			logger.NotificationType(req.Type), logger.Error(err))
		return Handle{}, err
	}

	stored, created, err := d.tracker.Submit(ctx, tr)
	if err != nil {
		return Handle{}, fmt.Errorf("dispatch: submit: %w", err)
	}
	requestsSubmitted.WithLabelValues(stored.Type, strconv.FormatBool(!created)).Inc()

	h := Handle{
		RequestID:    stored.ID,
		Duplicate:    !created,
		State:        stored.State,
		ScheduledFor: stored.ScheduledFor,
	}
	if !created {
		d.log.LogAttrs(ctx, slog.LevelInfo, "duplicate request",
			logger.RequestID(stored.ID), slog.String("idempotency_key", req.IdempotencyKey))
		return h, nil
	}

	d.requests.Schedule(stored.ID, d.dueAt(stored.ScheduledFor), stored.Priority)
	d.log.LogAttrs(ctx, slog.LevelInfo, "request accepted",
		logger.RequestID(stored.ID),
		logger.NotificationType(stored.Type),
		logger.Count(len(stored.Recipients)))
	return h, nil
}

// Cancel stops a request that has not finished. Attempts already being sent
// complete; nothing else is sent for the request afterwards.
func (d *Dispatcher) Cancel(ctx context.Context, requestID string) error {
	cancelled, err := d.tracker.CancelRequest(ctx, requestID)
	if err != nil {
		return err
	}
	d.requests.Remove(requestID)
	for _, a := range cancelled {
		d.ready.Remove(a.Key)
	}
	readyQueue.Set(float64(d.ready.Len()))
	return nil
}

// Status returns the per-recipient, per-channel delivery report.
func (d *Dispatcher) Status(ctx context.Context, requestID string) (tracker.Report, error) {
	return d.tracker.Status(ctx, requestID)
}

// Subscribe streams the transition events of a request until ctx ends.
func (d *Dispatcher) Subscribe(ctx context.Context, requestID string) broadcast.Subscriber[tracker.Event] {
	return d.tracker.Subscribe(ctx, requestID)
}

// Run starts the expansion and send workers and blocks until ctx is done.
// On return every in-flight send has finished or timed out. A dispatcher
// runs once.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if err := d.configureLimits(); err != nil {
		return err
	}
	if err := d.Recover(ctx); err != nil {
		return fmt.Errorf("dispatch: recover: %w", err)
	}

	for range d.cfg.Expanders {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.expandLoop(ctx)
		}()
	}
	for range d.cfg.Workers {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.sendLoop(ctx)
		}()
	}

	d.log.LogAttrs(ctx, slog.LevelInfo, "dispatcher started",
		slog.Int("workers", d.cfg.Workers), slog.Int("expanders", d.cfg.Expanders))

	<-ctx.Done()

	d.log.LogAttrs(context.Background(), slog.LevelInfo, "dispatcher stopping, waiting for in-flight sends")
	d.requests.Close()
	d.ready.Close()
	d.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ShutdownTimeout)
	defer cancel()
	d.batches.Close(shutdownCtx)

	d.log.LogAttrs(shutdownCtx, slog.LevelInfo, "dispatcher stopped")
	return nil
}

// Recover restores in-process schedules from the store: expired sending
// leases are failed back into the retry path, queued attempts and pending
// requests are rescheduled. Run calls it on start; it is safe to call
// periodically.
func (d *Dispatcher) Recover(ctx context.Context) error {
	recovered, err := d.tracker.Recover(ctx)
	if err != nil {
		return err
	}
	if len(recovered) > 0 {
		d.log.LogAttrs(ctx, slog.LevelWarn, "recovered expired leases", logger.Count(len(recovered)))
	}

	queued, err := d.tracker.Queued(ctx)
	if err != nil {
		return err
	}
	for _, a := range queued {
		d.ready.Schedule(a.Key, a.NextAttemptAt, a.Priority)
	}
	readyQueue.Set(float64(d.ready.Len()))

	pending, err := d.tracker.Pending(ctx)
	if err != nil {
		return err
	}
	for _, r := range pending {
		d.requests.Schedule(r.ID, d.dueAt(r.ScheduledFor), r.Priority)
	}

	d.log.LogAttrs(ctx, slog.LevelDebug, "schedules restored",
		slog.Int("attempts", len(queued)), slog.Int("requests", len(pending)))
	return nil
}

func (d *Dispatcher) configureLimits() error {
	if d.limiter == nil {
		return nil
	}
	for _, name := range d.channels.Names() {
		ch, err := d.channels.Get(name)
		if err != nil || ch.RateLimit == nil {
			continue
		}
		if err := d.limiter.Configure(ch.LimitKey(), *ch.RateLimit); err != nil {
			return fmt.Errorf("dispatch: rate limit for %s: %w", name, err)
		}
	}
	return nil
}

func (d *Dispatcher) expandLoop(ctx context.Context) {
	for {
		id, err := d.requests.Next(ctx)
		if err != nil {
			return
		}
		d.expand(ctx, id)
	}
}

func (d *Dispatcher) sendLoop(ctx context.Context) {
	for {
		key, err := d.ready.Next(ctx)
		if err != nil {
			return
		}
		readyQueue.Set(float64(d.ready.Len()))
		d.batches.Add(ctx, key.Channel, key)
	}
}

func (d *Dispatcher) batchSize(name channel.Name) int {
	ch, err := d.channels.Get(name)
	if err != nil {
		return 1
	}
	return ch.BatchSize()
}

func (d *Dispatcher) dueAt(scheduledFor time.Time) time.Time {
	now := d.now()
	if scheduledFor.After(now) {
		return scheduledFor
	}
	return now
}

// validate checks req and returns the tracker record to persist.
func (d *Dispatcher) validate(req Request) (tracker.Request, error) {
	errs := &InvalidRequestError{}

	recipients := make([]string, 0, len(req.Recipients))
	for i, r := range req.Recipients {
		if r == "" {
			errs.add(fmt.Sprintf("recipients[%d]", i), "must not be empty")
			continue
		}
		if !slices.Contains(recipients, r) {
			recipients = append(recipients, r)
		}
	}
	if len(req.Recipients) == 0 {
		errs.add("recipients", "at least one recipient is required")
	}

	if req.Type == "" {
		errs.add("type", "is required")
		return tracker.Request{}, errs
	}
	nt, ok := d.types.Get(req.Type)
	if !ok {
		errs.add("type", fmt.Sprintf("unknown notification type %q", req.Type))
		return tracker.Request{}, errors.Join(errs, ErrUnknownType)
	}

	tmpl := req.Template
	if tmpl == "" {
		tmpl = nt.template()
	}
	supported, err := d.renderer.Channels(tmpl)
	if err != nil {
		errs.add("template", fmt.Sprintf("template %q does not exist", tmpl))
	}

	channels := req.Channels
	if len(channels) == 0 {
		channels = nt.Channels
	}
	channels = dedupe(channels)
	for _, ch := range channels {
		switch {
		case !d.channels.Has(ch):
			errs.add("channels", fmt.Sprintf("channel %q is not registered", ch))
		case err == nil && !slices.Contains(supported, ch):
			errs.add("channels", fmt.Sprintf("template %q has no %s variant", tmpl, ch))
		}
	}

	nt.validateContext(req.Context, errs)

	if err := errs.orNil(); err != nil {
		return tracker.Request{}, err
	}

	priority := req.Priority
	if priority == 0 {
		priority = nt.Priority
	}
	return tracker.Request{
		IdempotencyKey: req.IdempotencyKey,
		Type:           req.Type,
		Template:       tmpl,
		Recipients:     recipients,
		Channels:       channels,
		Context:        req.Context,
		Priority:       priority,
		ScheduledFor:   req.ScheduledFor,
	}, nil
}

func dedupe(names []channel.Name) []channel.Name {
	out := make([]channel.Name, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
