package retry

import "time"

// DelayWithRandom exposes delay with a fixed random source.
func (p Policy) DelayWithRandom(attempt int, r float64) time.Duration {
	return p.delay(attempt, func() float64 { return r })
}
