// Package preference resolves which channels a notification may use for a
// recipient.
//
// Preferences belong to another part of the system; this package only reads
// them through Source. Resolver.Resolve computes
//
//	eligible = requested ∩ enabled(recipient, type), or ∅ when opted out
//
// and drops channels the recipient has no address for (in-app falls back to
// the recipient id). An empty result is a normal outcome that the dispatcher
// records as "no eligible channel". ErrRecipientNotFound concerns only that
// recipient.
//
// Resolution is a snapshot: preference changes made after it do not cancel
// attempts already scheduled from it.
package preference
