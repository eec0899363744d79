// Package tracker is the durable record of notification requests and their
// delivery attempts.
//
// One Attempt exists per (request, recipient, channel) Key. Its lifecycle is
//
//	queued -> sending -> sent
//	               \-> failed -> dead                         (permanent)
//	                       \-> retrying -> queued             (budget left)
//	                                   \-> dead               (budget used up)
//	                                   \-> cancelled          (request cancelled)
//	queued -> cancelled
//
// sent, dead and cancelled are terminal. Every change goes through the
// Tracker, which validates it against the graph, writes it with a
// compare-and-set on Attempt.Version and appends an Event to the audit log in
// the same write. Claim is that compare-and-set, so at most one worker sends a
// given attempt at a time.
//
// Outcomes record results that never produced an attempt (no eligible
// channel, unknown recipient, render failure). Status combines both into a
// Report; Subscribe streams a request's events as they happen.
//
// MemoryStore backs tests; pgstore provides the PostgreSQL implementation.
package tracker
