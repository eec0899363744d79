package channel

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
	"github.com/dmitrymomot/dispatchkit/pkg/retry"
)

// Name identifies a delivery transport.
type Name string

const (
	Email   Name = "email"
	SMS     Name = "sms"
	Push    Name = "push"
	InApp   Name = "in_app"
	Chat    Name = "chat"
	Webhook Name = "webhook"
)

func (n Name) String() string { return string(n) }

// Channel describes a transport the dispatcher can deliver through.
type Channel struct {
	Name    Name
	Adapter Adapter

	// MaxBatchSize bounds how many attempts are handed to the adapter together.
	// Values below 1 are treated as 1.
	MaxBatchSize int
	// RateLimit is the provider budget. Nil means unlimited.
	RateLimit *ratelimiter.Config
	// Account distinguishes several provider accounts behind one channel in
	// rate-limit keys.
	Account string
	// Timeout bounds one adapter call. Exceeding it is a transient failure.
	Timeout time.Duration
	// Retry is the backoff and attempt budget for this channel.
	Retry retry.Policy
	// Classifier maps adapter errors to error classes. Nil uses Classify.
	Classifier Classifier
}

// Validate checks the descriptor before registration.
func (c Channel) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidChannel)
	}
	if c.Adapter == nil {
		return fmt.Errorf("%w: %s has no adapter", ErrInvalidChannel, c.Name)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidChannel, c.Name, err)
	}
	return nil
}

// BatchSize returns the effective batch size.
func (c Channel) BatchSize() int {
	return max(c.MaxBatchSize, 1)
}

// LimitKey is the rate-limiter key for this channel.
func (c Channel) LimitKey() string {
	if c.Account == "" {
		return string(c.Name)
	}
	return string(c.Name) + ":" + c.Account
}

// Classify runs the channel's classifier.
func (c Channel) Classify(err error) ErrorClass {
	if c.Classifier != nil {
		return c.Classifier(err)
	}
	return Classify(err)
}
