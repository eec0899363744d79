package statemachine

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("statemachine: from, to and event must be set")

// ErrNoTransitionAvailable means no edge leaves the state on the given event.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("statemachine: no transition from %q on %q", e.StateName, e.EventName)
}

func NewErrNoTransitionAvailable(state, event string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{StateName: state, EventName: event}
}

// ErrTransitionRejected means edges exist but every one was blocked by a guard.
type ErrTransitionRejected struct {
	StateName string
	EventName string
}

func (e *ErrTransitionRejected) Error() string {
	return fmt.Sprintf("statemachine: transition from %q on %q rejected by guards", e.StateName, e.EventName)
}

func NewErrTransitionRejected(state, event string) *ErrTransitionRejected {
	return &ErrTransitionRejected{StateName: state, EventName: event}
}

// ErrTerminalState means an edge was added out of a terminal state.
type ErrTerminalState struct {
	StateName string
}

func (e *ErrTerminalState) Error() string {
	return fmt.Sprintf("statemachine: state %q is terminal", e.StateName)
}

func NewErrTerminalState(state string) *ErrTerminalState {
	return &ErrTerminalState{StateName: state}
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}

func IsTransitionRejectedError(err error) bool {
	var e *ErrTransitionRejected
	return errors.As(err, &e)
}
