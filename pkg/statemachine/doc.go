// Package statemachine provides a shared, stateless transition graph.
//
// A Graph holds the allowed edges between states of a record type. The
// record stores its own current state; Next answers where an event leads and
// returns ErrNoTransitionAvailable or ErrTransitionRejected when it leads
// nowhere. Guards branch the same event to different targets:
//
//	g := statemachine.New[State, Event]().
//	    MustAdd(Retrying, Requeue, Queued, budgetLeft).
//	    MustAdd(Retrying, Requeue, Dead).
//	    Terminal(Sent, Dead)
//
//	next, err := g.Next(ctx, attempt.State, Requeue, attempt)
//
// Terminal states refuse outgoing edges at definition time.
package statemachine
