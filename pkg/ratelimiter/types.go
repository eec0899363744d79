package ratelimiter

import "time"

// Config defines a token bucket.
type Config struct {
	Capacity       int           `yaml:"capacity"`        // burst size
	RefillRate     int           `yaml:"refill_rate"`     // tokens added per interval
	RefillInterval time.Duration `yaml:"refill_interval"` // how often tokens are added
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return errInvalidConfig("capacity must be positive, got %d", c.Capacity)
	case c.RefillRate <= 0:
		return errInvalidConfig("refill rate must be positive, got %d", c.RefillRate)
	case c.RefillInterval <= 0:
		return errInvalidConfig("refill interval must be positive, got %v", c.RefillInterval)
	}
	return nil
}

// Result describes the bucket after a consume call.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // tokens left after the call
	ResetAt   time.Time // next refill
	allowed   bool
}

// Allowed reports whether the tokens were granted.
func (r Result) Allowed() bool {
	return r.allowed
}

// Permit is a granted acquisition.
type Permit struct {
	Key       string
	Remaining int
}
