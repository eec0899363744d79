package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy is the per-channel retry discipline: how many sends an attempt may
// make and how long to wait between them.
type Policy struct {
	// MaxAttempts is the total number of counted sends, including the first one.
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay is the wait before the second send.
	BaseDelay time.Duration `yaml:"base_delay"`
	// Multiplier grows the delay for every further send.
	Multiplier float64 `yaml:"multiplier"`
	// JitterFraction spreads each delay uniformly over ±JitterFraction of its value.
	JitterFraction float64 `yaml:"jitter"`
	// MaxDelay caps a single delay.
	MaxDelay time.Duration `yaml:"max_delay"`
}

// DefaultPolicy returns the policy used when a channel does not configure one.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		BaseDelay:      2 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.1,
		MaxDelay:       5 * time.Minute,
	}
}

// Validate reports configuration that cannot produce a sane schedule.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidPolicy)
	case p.BaseDelay < 0 || p.MaxDelay < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidPolicy)
	case p.Multiplier != 0 && p.Multiplier < 1:
		return fmt.Errorf("%w: multiplier must be >= 1", ErrInvalidPolicy)
	case p.JitterFraction < 0 || p.JitterFraction >= 1:
		return fmt.Errorf("%w: jitter must be in [0, 1)", ErrInvalidPolicy)
	case p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("%w: max_delay is below base_delay", ErrInvalidPolicy)
	}
	return nil
}

// Exhausted reports whether an attempt that just failed its n-th counted send
// has used up the budget.
func (p Policy) Exhausted(n int) bool {
	return n >= max(p.MaxAttempts, 1)
}

// Delay returns the wait after the attempt-th counted send failed:
//
//	base * multiplier^(attempt-1) * (1 ± jitter), capped at MaxDelay
//
// Zero fields fall back to 1s base, multiplier 2 and no cap.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delay(attempt, rand.Float64)
}

func (p Policy) delay(attempt int, random func() float64) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := p.BaseDelay
	if base == 0 {
		base = time.Second
	}
	mult := p.Multiplier
	if mult == 0 {
		mult = 2
	}

	d := float64(base) * math.Pow(mult, float64(attempt-1))
	if p.JitterFraction > 0 {
		d *= 1 + (random()*2-1)*p.JitterFraction
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
