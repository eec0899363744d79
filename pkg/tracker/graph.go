package tracker

import "github.com/dmitrymomot/dispatchkit/pkg/statemachine"

// newGraph is the attempt lifecycle. The only loop is retrying -> queued,
// bounded by the retry budget.
func newGraph() *statemachine.Graph[State, Trigger] {
	return statemachine.New[State, Trigger]().
		MustAdd(StateQueued, TriggerClaim, StateSending).
		MustAdd(StateQueued, TriggerCancel, StateCancelled).
		MustAdd(StateSending, TriggerAck, StateSent).
		MustAdd(StateSending, TriggerFail, StateFailed).
		MustAdd(StateFailed, TriggerRetry, StateRetrying).
		MustAdd(StateFailed, TriggerReject, StateDead).
		MustAdd(StateRetrying, TriggerRequeue, StateQueued).
		MustAdd(StateRetrying, TriggerExhaust, StateDead).
		MustAdd(StateRetrying, TriggerCancel, StateCancelled).
		Terminal(StateSent, StateDead, StateCancelled)
}

// Transitions lists every allowed edge of the attempt lifecycle.
func Transitions() []statemachine.Transition[State, Trigger] {
	return newGraph().Edges()
}
