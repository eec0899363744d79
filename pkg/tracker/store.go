package tracker

import (
	"context"
	"time"
)

// Store is durable storage for requests and attempts. Attempts are keyed by
// Key and updated by compare-and-set on Attempt.Version, so any backend that
// can do a conditional write satisfies it.
type Store interface {
	// CreateRequest stores req unless an active request already holds its
	// idempotency key; then it returns that request and false.
	CreateRequest(ctx context.Context, req Request) (Request, bool, error)
	GetRequest(ctx context.Context, id string) (Request, error)
	// SetRequestState moves a request to to if it is currently in one of from.
	// It reports whether the write happened.
	SetRequestState(ctx context.Context, id string, to RequestState, at time.Time, from ...RequestState) (bool, error)
	ListRequests(ctx context.Context, states ...RequestState) ([]Request, error)

	// InsertAttempt stores a new attempt with Version 1 and its admission
	// event. It returns ErrAttemptExists when the key is taken.
	InsertAttempt(ctx context.Context, a Attempt, events ...Event) error
	GetAttempt(ctx context.Context, key Key) (Attempt, error)
	// UpdateAttempt writes a if the stored version equals a.Version, bumping
	// it by one, and appends events in the same write. Otherwise it returns
	// the current record with ErrVersionConflict.
	UpdateAttempt(ctx context.Context, a Attempt, events ...Event) (Attempt, error)
	ListAttempts(ctx context.Context, requestID string) ([]Attempt, error)
	ListAttemptsByState(ctx context.Context, states ...State) ([]Attempt, error)

	// PutOutcome stores o unless one exists for the same request, recipient
	// and channel. It reports whether o was stored.
	PutOutcome(ctx context.Context, o Outcome, events ...Event) (bool, error)
	ListOutcomes(ctx context.Context, requestID string) ([]Outcome, error)

	ListEvents(ctx context.Context, requestID string) ([]Event, error)
}

// EventSink receives every event after it is stored.
type EventSink interface {
	Record(ctx context.Context, ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event)

func (f EventSinkFunc) Record(ctx context.Context, ev Event) { f(ctx, ev) }
