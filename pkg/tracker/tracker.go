package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/pkg/broadcast"
	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/retry"
	"github.com/dmitrymomot/dispatchkit/pkg/statemachine"
)

// PolicySource returns the retry policy for a channel. *channel.Registry
// implements it.
type PolicySource interface {
	Policy(name channel.Name) retry.Policy
}

type defaultPolicies struct{}

func (defaultPolicies) Policy(channel.Name) retry.Policy { return retry.DefaultPolicy() }

var errLeaseExpired = errors.New("lease expired before the send was acknowledged")

// LeaseGrace is added to a claim's send timeout, so the lease outlives the
// adapter call it covers plus the work around it.
const LeaseGrace = 30 * time.Second

// casRetries bounds how often a compare-and-set update is retried after a
// concurrent change.
const casRetries = 5

// Tracker owns every state change of requests and attempts.
type Tracker struct {
	store        Store
	graph        *statemachine.Graph[State, Trigger]
	events       *broadcast.MemoryBroadcaster[Event]
	sinks        []EventSink
	policies     PolicySource
	now          func() time.Time
	lease        time.Duration
	maxThrottles int
	log          *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLease sets how long a claim stays valid. Default 5m.
func WithLease(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.lease = d
		}
	}
}

// WithPolicies sets where retry budgets and delays come from.
func WithPolicies(p PolicySource) Option {
	return func(t *Tracker) { t.policies = p }
}

// WithSink adds a receiver for every stored event.
func WithSink(s EventSink) Option {
	return func(t *Tracker) { t.sinks = append(t.sinks, s) }
}

// WithMaxThrottles bounds provider throttle requeues per attempt. They do not
// consume the retry budget, but an attempt throttled this many times is dead.
// Default 100.
func WithMaxThrottles(n int) Option {
	return func(t *Tracker) { t.maxThrottles = n }
}

// WithSubscriberBuffer sets the per-subscriber event buffer. Default 64.
func WithSubscriberBuffer(n int) Option {
	return func(t *Tracker) { t.events = broadcast.NewMemoryBroadcaster[Event](n) }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// New returns a Tracker over store.
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		graph:        newGraph(),
		policies:     defaultPolicies{},
		now:          time.Now,
		lease:        5 * time.Minute,
		maxThrottles: 100,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.events == nil {
		t.events = broadcast.NewMemoryBroadcaster[Event](64)
	}
	t.log = t.log.With(logger.Component("tracker"))
	return t
}

// Close ends every subscription.
func (t *Tracker) Close() error {
	return t.events.Close()
}

// Submit stores a new pending request. If an active request already holds
// req.IdempotencyKey, that request is returned with created false.
func (t *Tracker) Submit(ctx context.Context, req Request) (Request, bool, error) {
	now := t.now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.State = RequestPending
	req.CreatedAt = now
	req.UpdatedAt = now

	stored, created, err := t.store.CreateRequest(ctx, req)
	if err != nil {
		return Request{}, false, fmt.Errorf("tracker: create request: %w", err)
	}
	return stored, created, nil
}

// Request returns a stored request.
func (t *Tracker) Request(ctx context.Context, id string) (Request, error) {
	return t.store.GetRequest(ctx, id)
}

// Pending lists requests that still need expansion.
func (t *Tracker) Pending(ctx context.Context) ([]Request, error) {
	return t.store.ListRequests(ctx, RequestPending)
}

// Expanded marks every recipient of the request as resolved into attempts or
// outcomes. The request completes right away if nothing is left in flight.
func (t *Tracker) Expanded(ctx context.Context, id string) error {
	if _, err := t.store.SetRequestState(ctx, id, RequestProcessing, t.now(), RequestPending); err != nil {
		return err
	}
	return t.complete(ctx, id)
}

// Admit creates the first attempt for key in queued, due at at. If the key is
// already admitted the existing attempt is returned with ErrAttemptExists.
func (t *Tracker) Admit(ctx context.Context, key Key, address string, priority int, at time.Time) (Attempt, error) {
	now := t.now()
	a := Attempt{
		Key:           key,
		Sequence:      1,
		State:         StateQueued,
		Address:       address,
		Priority:      priority,
		NextAttemptAt: at,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ev := t.newEvent(a, TriggerAdmit, "", StateQueued)

	if err := t.store.InsertAttempt(ctx, a, ev); err != nil {
		if errors.Is(err, ErrAttemptExists) {
			existing, gerr := t.store.GetAttempt(ctx, key)
			if gerr != nil {
				return Attempt{}, gerr
			}
			return existing, ErrAttemptExists
		}
		return Attempt{}, fmt.Errorf("tracker: admit %s: %w", key, err)
	}
	a.Version = 1
	t.publish(ctx, ev)
	return a, nil
}

// ClaimOption adjusts a single claim.
type ClaimOption func(*claimOptions)

type claimOptions struct {
	sendTimeout time.Duration
}

// ClaimTimeout declares how long the send under this claim may take. The
// lease is extended to at least d plus LeaseGrace, so Recover never takes
// back a claim whose send can still be running.
func ClaimTimeout(d time.Duration) ClaimOption {
	return func(o *claimOptions) { o.sendTimeout = d }
}

// Lease returns the lease of a claim whose send is bounded by sendTimeout.
func (t *Tracker) Lease(sendTimeout time.Duration) time.Duration {
	if sendTimeout <= 0 {
		return t.lease
	}
	return max(t.lease, sendTimeout+LeaseGrace)
}

// Claim moves a due queued attempt to sending for the caller. Exactly one of
// several concurrent callers succeeds; the others get ErrNotClaimable.
// Attempts of a cancelled request are cancelled instead and
// ErrRequestCancelled is returned.
func (t *Tracker) Claim(ctx context.Context, key Key, opts ...ClaimOption) (Attempt, error) {
	var o claimOptions
	for _, opt := range opts {
		opt(&o)
	}

	a, err := t.store.GetAttempt(ctx, key)
	if err != nil {
		return Attempt{}, err
	}
	if a.State != StateQueued {
		return a, fmt.Errorf("%w: %s is %s", ErrNotClaimable, key, a.State)
	}
	now := t.now()
	if a.NextAttemptAt.After(now) {
		return a, fmt.Errorf("%w: %s due at %s", ErrNotDue, key, a.NextAttemptAt.Format(time.RFC3339Nano))
	}

	req, err := t.store.GetRequest(ctx, key.RequestID)
	if err != nil {
		return a, err
	}
	if req.State == RequestCancelled {
		if _, err := t.cancelAttempt(ctx, a); err != nil && !errors.Is(err, ErrNotClaimable) {
			return a, err
		}
		return a, ErrRequestCancelled
	}

	var evs []Event
	if err := t.step(ctx, &a, TriggerClaim, &evs); err != nil {
		return a, err
	}
	a.LeaseUntil = now.Add(t.Lease(o.sendTimeout))
	a.UpdatedAt = now

	updated, err := t.store.UpdateAttempt(ctx, a, evs...)
	if errors.Is(err, ErrVersionConflict) {
		return updated, fmt.Errorf("%w: %s claimed concurrently", ErrNotClaimable, key)
	}
	if err != nil {
		return a, err
	}
	t.publish(ctx, evs...)
	return updated, nil
}

// Defer pushes a queued attempt's due time to until without using a
// sequence number. It is the answer to a pre-send rate-limit refusal.
func (t *Tracker) Defer(ctx context.Context, key Key, until time.Time) (Attempt, error) {
	for range casRetries {
		a, err := t.store.GetAttempt(ctx, key)
		if err != nil {
			return Attempt{}, err
		}
		if a.State != StateQueued {
			return a, fmt.Errorf("%w: %s is %s", ErrNotClaimable, key, a.State)
		}
		a.NextAttemptAt = until
		a.UpdatedAt = t.now()
		ev := t.newEvent(a, TriggerDefer, StateQueued, StateQueued)

		updated, err := t.store.UpdateAttempt(ctx, a, ev)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return a, err
		}
		t.publish(ctx, ev)
		return updated, nil
	}
	return Attempt{}, fmt.Errorf("%w: %s", ErrVersionConflict, key)
}

// MarkSent records the provider's acknowledgement.
func (t *Tracker) MarkSent(ctx context.Context, key Key, providerRef string) (Attempt, error) {
	a, err := t.store.GetAttempt(ctx, key)
	if err != nil {
		return Attempt{}, err
	}
	now := t.now()
	a.ProviderRef = providerRef
	a.ErrorClass = channel.ClassNone
	a.LastError = ""
	a.LeaseUntil = time.Time{}
	a.UpdatedAt = now

	var evs []Event
	if err := t.step(ctx, &a, TriggerAck, &evs); err != nil {
		return a, err
	}
	updated, err := t.store.UpdateAttempt(ctx, a, evs...)
	if err != nil {
		return a, fmt.Errorf("tracker: mark sent %s: %w", key, err)
	}
	t.publish(ctx, evs...)
	t.log.LogAttrs(ctx, slog.LevelDebug, "attempt sent",
		logger.RequestID(key.RequestID), logger.RecipientID(key.RecipientID),
		logger.Channel(string(key.Channel)), logger.Attempt(a.Sequence), logger.ProviderRef(providerRef))
	return updated, t.complete(ctx, key.RequestID)
}

// Fail records a failed send of class and decides what follows:
//
//   - permanent: failed -> dead
//   - transient: failed -> retrying -> queued with the next sequence, or dead
//     once the channel's retry budget is used up
//   - throttled: like transient, but the sequence is not charged to the budget
//
// A request cancelled meanwhile ends the attempt in cancelled instead of
// requeueing it. The returned attempt tells the caller whether and when to
// schedule the next send.
func (t *Tracker) Fail(ctx context.Context, key Key, class channel.ErrorClass, cause error, retryAfter time.Duration) (Attempt, error) {
	a, err := t.store.GetAttempt(ctx, key)
	if err != nil {
		return Attempt{}, err
	}
	if class == channel.ClassNone {
		class = channel.ClassTransient
	}
	now := t.now()
	a.ErrorClass = class
	if cause != nil {
		a.LastError = cause.Error()
	}
	a.LeaseUntil = time.Time{}
	a.UpdatedAt = now

	var evs []Event
	if err := t.step(ctx, &a, TriggerFail, &evs); err != nil {
		return a, err
	}

	if class == channel.ClassPermanent {
		a.Outcome = OutcomePermanentFailure
		if err := t.step(ctx, &a, TriggerReject, &evs); err != nil {
			return a, err
		}
	} else {
		if err := t.step(ctx, &a, TriggerRetry, &evs); err != nil {
			return a, err
		}
		if class == channel.ClassThrottled {
			a.Throttled++
		}

		req, err := t.store.GetRequest(ctx, key.RequestID)
		if err != nil {
			return a, err
		}
		policy := t.policies.Policy(key.Channel)

		switch {
		case req.State == RequestCancelled:
			a.Outcome = OutcomeCancelled
			err = t.step(ctx, &a, TriggerCancel, &evs)
		case class != channel.ClassThrottled && policy.Exhausted(a.Counted()),
			class == channel.ClassThrottled && t.maxThrottles > 0 && a.Throttled >= t.maxThrottles:
			a.Outcome = OutcomeRetryExhausted
			err = t.step(ctx, &a, TriggerExhaust, &evs)
		default:
			delay := policy.Delay(max(a.Counted(), 1))
			if class == channel.ClassThrottled && retryAfter > 0 {
				delay = retryAfter
			}
			a.Sequence++
			a.NextAttemptAt = now.Add(delay)
			err = t.step(ctx, &a, TriggerRequeue, &evs)
		}
		if err != nil {
			return a, err
		}
	}

	updated, err := t.store.UpdateAttempt(ctx, a, evs...)
	if err != nil {
		return a, fmt.Errorf("tracker: fail %s: %w", key, err)
	}
	t.publish(ctx, evs...)

	attrs := []slog.Attr{
		logger.RequestID(key.RequestID), logger.RecipientID(key.RecipientID),
		logger.Channel(string(key.Channel)), logger.Attempt(a.Sequence),
		logger.State(string(a.State)), slog.String("class", string(class)), logger.Error(cause),
	}
	if a.State == StateDead {
		t.log.LogAttrs(ctx, slog.LevelError, "attempt dead", append(attrs, slog.String("outcome", string(a.Outcome)))...)
	} else {
		t.log.LogAttrs(ctx, slog.LevelInfo, "attempt failed", append(attrs, logger.Delay(a.NextAttemptAt.Sub(now)))...)
	}

	if a.State.Terminal() {
		return updated, t.complete(ctx, key.RequestID)
	}
	return updated, nil
}

// RecordOutcome stores a terminal result that has no attempt. Recording the
// same (request, recipient, channel) twice keeps the first.
func (t *Tracker) RecordOutcome(ctx context.Context, o Outcome) (bool, error) {
	o.At = t.now()
	ev := t.newEvent(Attempt{Key: Key{RequestID: o.RequestID, RecipientID: o.RecipientID, Channel: o.Channel}}, TriggerOutcome, "", "")
	ev.Outcome = o.Kind
	ev.Error = o.Detail

	stored, err := t.store.PutOutcome(ctx, o, ev)
	if err != nil {
		return false, fmt.Errorf("tracker: record outcome: %w", err)
	}
	if stored {
		t.publish(ctx, ev)
	}
	return stored, nil
}

// CancelRequest cancels a request that has not finished. Queued attempts are
// cancelled now; attempts being sent finish, and their retries are
// suppressed. It returns the attempts it cancelled.
func (t *Tracker) CancelRequest(ctx context.Context, id string) ([]Attempt, error) {
	moved, err := t.store.SetRequestState(ctx, id, RequestCancelled, t.now(), RequestPending, RequestProcessing)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrRequestFinished
	}

	attempts, err := t.store.ListAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	var cancelled []Attempt
	for _, a := range attempts {
		if a.State != StateQueued {
			continue
		}
		c, err := t.cancelAttempt(ctx, a)
		if errors.Is(err, ErrNotClaimable) {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		cancelled = append(cancelled, c)
	}

	t.publishRequest(ctx, id, TriggerRequestCancelled, RequestCancelled)
	t.log.LogAttrs(ctx, slog.LevelInfo, "request cancelled", logger.RequestID(id), logger.Count(len(cancelled)))
	return cancelled, nil
}

func (t *Tracker) cancelAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	for range casRetries {
		if a.State != StateQueued {
			return a, ErrNotClaimable
		}
		var evs []Event
		a.Outcome = OutcomeCancelled
		a.UpdatedAt = t.now()
		if err := t.step(ctx, &a, TriggerCancel, &evs); err != nil {
			return a, err
		}
		updated, err := t.store.UpdateAttempt(ctx, a, evs...)
		if errors.Is(err, ErrVersionConflict) {
			a = updated
			continue
		}
		if err != nil {
			return a, err
		}
		t.publish(ctx, evs...)
		return updated, nil
	}
	return a, fmt.Errorf("%w: %s", ErrVersionConflict, a.Key)
}

// Recover fails every sending attempt whose lease has expired as transient,
// so work claimed by a crashed worker re-enters the retry path. It returns
// the recovered attempts in their new state.
func (t *Tracker) Recover(ctx context.Context) ([]Attempt, error) {
	sending, err := t.store.ListAttemptsByState(ctx, StateSending)
	if err != nil {
		return nil, err
	}
	now := t.now()
	var out []Attempt
	for _, a := range sending {
		if a.LeaseUntil.After(now) {
			continue
		}
		r, err := t.Fail(ctx, a.Key, channel.ClassTransient, errLeaseExpired, 0)
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return out, err
		}
		out = append(out, r)
	}
	if len(out) > 0 {
		t.log.LogAttrs(ctx, slog.LevelWarn, "recovered expired leases", logger.Count(len(out)))
	}
	return out, nil
}

// Queued lists every queued attempt, for rescheduling after a restart.
func (t *Tracker) Queued(ctx context.Context) ([]Attempt, error) {
	return t.store.ListAttemptsByState(ctx, StateQueued)
}

// Attempt returns one attempt.
func (t *Tracker) Attempt(ctx context.Context, key Key) (Attempt, error) {
	return t.store.GetAttempt(ctx, key)
}

// Events returns the audit log of a request in write order.
func (t *Tracker) Events(ctx context.Context, requestID string) ([]Event, error) {
	return t.store.ListEvents(ctx, requestID)
}

// Subscribe streams events of one request until ctx ends.
func (t *Tracker) Subscribe(ctx context.Context, requestID string) broadcast.Subscriber[Event] {
	return t.events.Subscribe(ctx, requestID)
}

// complete finishes a processing request once every attempt is terminal.
func (t *Tracker) complete(ctx context.Context, id string) error {
	req, err := t.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.State != RequestProcessing {
		return nil
	}
	attempts, err := t.store.ListAttempts(ctx, id)
	if err != nil {
		return err
	}
	for _, a := range attempts {
		if !a.State.Terminal() {
			return nil
		}
	}
	moved, err := t.store.SetRequestState(ctx, id, RequestCompleted, t.now(), RequestProcessing)
	if err != nil {
		return err
	}
	if moved {
		t.publishRequest(ctx, id, TriggerRequestCompleted, RequestCompleted)
		t.log.LogAttrs(ctx, slog.LevelInfo, "request completed", logger.RequestID(id), logger.Count(len(attempts)))
	}
	return nil
}

// publishRequest notifies subscribers that the request reached a final
// state. The event carries no attempt key and is not stored; the request
// row is the record of it.
func (t *Tracker) publishRequest(ctx context.Context, id string, trig Trigger, state RequestState) {
	ev := Event{
		ID:           uuid.NewString(),
		Key:          Key{RequestID: id},
		Trigger:      trig,
		RequestState: state,
		At:           t.now(),
	}
	_ = t.events.Broadcast(ctx, broadcast.Message[Event]{Topic: id, Data: ev})
}

func (t *Tracker) step(ctx context.Context, a *Attempt, trig Trigger, evs *[]Event) error {
	next, err := t.graph.Next(ctx, a.State, trig, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidState, a.Key, err)
	}
	*evs = append(*evs, t.newEvent(*a, trig, a.State, next))
	a.State = next
	return nil
}

func (t *Tracker) newEvent(a Attempt, trig Trigger, from, to State) Event {
	return Event{
		ID:          uuid.NewString(),
		Key:         a.Key,
		Sequence:    a.Sequence,
		Trigger:     trig,
		From:        from,
		To:          to,
		ErrorClass:  a.ErrorClass,
		Error:       a.LastError,
		Outcome:     a.Outcome,
		ProviderRef: a.ProviderRef,
		At:          t.now(),
	}
}

func (t *Tracker) publish(ctx context.Context, evs ...Event) {
	for _, ev := range evs {
		_ = t.events.Broadcast(ctx, broadcast.Message[Event]{Topic: ev.RequestID, Data: ev})
		for _, s := range t.sinks {
			s.Record(ctx, ev)
		}
	}
}
