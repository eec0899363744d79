package tracker

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// State is the delivery state of one attempt.
type State string

const (
	StateQueued    State = "queued"
	StateSending   State = "sending"
	StateSent      State = "sent"
	StateFailed    State = "failed"
	StateRetrying  State = "retrying"
	StateDead      State = "dead"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSent || s == StateDead || s == StateCancelled
}

// InFlight reports whether an attempt in s may still reach a provider.
func (s State) InFlight() bool {
	return s == StateQueued || s == StateSending
}

// Trigger names a state machine edge.
type Trigger string

const (
	TriggerClaim   Trigger = "claim"
	TriggerAck     Trigger = "ack"
	TriggerFail    Trigger = "fail"
	TriggerRetry   Trigger = "retry"
	TriggerReject  Trigger = "reject"
	TriggerRequeue Trigger = "requeue"
	TriggerExhaust Trigger = "exhaust"
	TriggerCancel  Trigger = "cancel"

	// Not state changes; recorded in the event log only.
	TriggerAdmit   Trigger = "admit"
	TriggerDefer   Trigger = "defer"
	TriggerOutcome Trigger = "outcome"

	// Request-level; broadcast to subscribers only.
	TriggerRequestCompleted Trigger = "request_completed"
	TriggerRequestCancelled Trigger = "request_cancelled"
)

// RequestState is the lifecycle of a notification request.
type RequestState string

const (
	// RequestPending requests are waiting for their scheduled time or for
	// expansion into attempts.
	RequestPending RequestState = "pending"
	// RequestProcessing requests are fully expanded and have attempts in flight.
	RequestProcessing RequestState = "processing"
	RequestCompleted  RequestState = "completed"
	RequestCancelled  RequestState = "cancelled"
)

// Active reports whether the request still holds its idempotency key.
func (s RequestState) Active() bool {
	return s == RequestPending || s == RequestProcessing
}

// OutcomeKind is why a recipient or an attempt did not end as sent.
type OutcomeKind string

const (
	OutcomeNoEligibleChannel OutcomeKind = "no_eligible_channel"
	OutcomeRecipientNotFound OutcomeKind = "recipient_not_found"
	OutcomeRenderError       OutcomeKind = "render_error"
	OutcomePermanentFailure  OutcomeKind = "permanent_failure"
	OutcomeRetryExhausted    OutcomeKind = "retry_exhausted"
	OutcomeCancelled         OutcomeKind = "cancelled"
)

// Key identifies an attempt.
type Key struct {
	RequestID   string       `json:"request_id"`
	RecipientID string       `json:"recipient_id"`
	Channel     channel.Name `json:"channel"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.RequestID, k.RecipientID, k.Channel)
}

// Request is a submitted notification.
type Request struct {
	ID             string
	IdempotencyKey string
	Type           string
	Template       string
	Recipients     []string
	// Channels restricts delivery; empty means every supported channel.
	Channels     []channel.Name
	Context      map[string]any
	Priority     int
	ScheduledFor time.Time
	State        RequestState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a copy that shares no slices or maps with r.
func (r Request) Clone() Request {
	r.Recipients = slices.Clone(r.Recipients)
	r.Channels = slices.Clone(r.Channels)
	r.Context = maps.Clone(r.Context)
	return r
}

// Attempt is the delivery record for one (request, recipient, channel).
type Attempt struct {
	Key
	// Sequence counts sends and starts at 1. It grows on every requeue.
	Sequence int
	// Throttled counts sequences spent on provider throttling. They do not
	// use up the retry budget.
	Throttled     int
	State         State
	ErrorClass    channel.ErrorClass
	LastError     string
	Outcome       OutcomeKind
	Address       string
	Priority      int
	NextAttemptAt time.Time
	LeaseUntil    time.Time
	ProviderRef   string
	// Version guards compare-and-set updates.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Counted is the number of sends charged against the retry budget.
func (a Attempt) Counted() int {
	return a.Sequence - a.Throttled
}

// Outcome is a terminal result recorded without an attempt, such as a
// recipient with no eligible channel or a render failure.
type Outcome struct {
	RequestID   string
	RecipientID string
	// Channel is empty for recipient-level outcomes.
	Channel channel.Name
	Kind    OutcomeKind
	Detail  string
	At      time.Time
}

// Event is one entry of the delivery audit log.
type Event struct {
	ID string `json:"id"`
	Key
	Sequence    int                `json:"sequence,omitempty"`
	Trigger     Trigger            `json:"trigger"`
	From        State              `json:"from,omitempty"`
	To          State              `json:"to,omitempty"`
	ErrorClass  channel.ErrorClass `json:"error_class,omitempty"`
	Error       string             `json:"error,omitempty"`
	Outcome     OutcomeKind        `json:"outcome,omitempty"`
	ProviderRef string             `json:"provider_ref,omitempty"`
	// RequestState is set on request-level events only.
	RequestState RequestState `json:"request_state,omitempty"`
	At           time.Time    `json:"at"`
}

// Final reports whether ev announces that its request is finished.
func (ev Event) Final() bool {
	return ev.RequestState == RequestCompleted || ev.RequestState == RequestCancelled
}
