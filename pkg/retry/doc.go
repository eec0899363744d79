// Package retry decides when a failed delivery attempt may be tried again.
//
// Policy computes exponential backoff with jitter,
//
//	delay = base * multiplier^(attempt-1) * (1 ± jitter), capped at max_delay
//
// and tells whether an attempt has used up its MaxAttempts budget.
//
// Scheduler is a min-heap keyed by due time. The dispatcher keeps every
// waiting attempt in one (first sends, retries and throttled deferrals
// alike) and a second one for requests scheduled for the future. Workers call
// Next, which blocks until the earliest key is due:
//
//	s := retry.NewScheduler[string]()
//	s.Schedule("req-1/user-1/email", time.Now().Add(policy.Delay(1)), 0)
//	key, err := s.Next(ctx)
//
// A key never comes out of Next before its due time.
package retry
