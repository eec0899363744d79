package channel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidChannel  = errors.New("channel: invalid channel")
	ErrUnknownChannel  = errors.New("channel: unknown channel")
	ErrDuplicate       = errors.New("channel: already registered")
	ErrPayloadMismatch = errors.New("channel: payload does not match channel")

	// Adapter error classes. Adapters wrap provider errors with these.
	ErrTransient = errors.New("channel: transient failure")
	ErrPermanent = errors.New("channel: permanent failure")
	ErrThrottled = errors.New("channel: throttled by provider")
)

// ErrorClass tells the dispatcher what to do with a failed send.
type ErrorClass string

const (
	ClassNone      ErrorClass = ""
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
	ClassThrottled ErrorClass = "throttled"
)

// Classifier maps an adapter error to an ErrorClass.
type Classifier func(error) ErrorClass

// Classify is the default classifier: wrapped class sentinels decide, and
// anything unmarked is transient.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrThrottled):
		return ClassThrottled
	case errors.Is(err, ErrPermanent):
		return ClassPermanent
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}
	return ClassTransient
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Transient marks err as retryable.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// ThrottledError is a provider throttle response with an optional wait hint.
type ThrottledError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ThrottledError) Error() string {
	if e.Err == nil {
		return ErrThrottled.Error()
	}
	return ErrThrottled.Error() + ": " + e.Err.Error()
}

func (e *ThrottledError) Unwrap() []error { return []error{ErrThrottled, e.Err} }

// Throttled marks err as provider backpressure.
func Throttled(err error, retryAfter time.Duration) error {
	return &ThrottledError{RetryAfter: retryAfter, Err: err}
}

// RetryAfter returns the provider's wait hint carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var te *ThrottledError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
