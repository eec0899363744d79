package ratelimiter

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig     = errors.New("ratelimiter: invalid configuration")
	ErrInvalidTokenCount = errors.New("ratelimiter: invalid token count")
	ErrStoreUnavailable  = errors.New("ratelimiter: store unavailable")

	// ErrThrottled is the would-block signal: no token was available.
	ErrThrottled = errors.New("ratelimiter: throttled")
)

// ThrottledError carries how long the caller should wait before trying again.
type ThrottledError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("ratelimiter: %s throttled, retry after %s", e.Key, e.RetryAfter)
}

func (e *ThrottledError) Unwrap() error { return ErrThrottled }

// RetryAfter extracts the wait from a throttled error.
func RetryAfter(err error) (time.Duration, bool) {
	var te *ThrottledError
	if errors.As(err, &te) {
		return te.RetryAfter, true
	}
	return 0, false
}

func errInvalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
