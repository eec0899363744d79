package statemachine

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Guard decides at runtime whether a transition may be taken.
type Guard[S, E ~string] func(ctx context.Context, from S, event E, data any) bool

// Transition is one edge of the graph.
type Transition[S, E ~string] struct {
	From   S
	To     S
	Event  E
	Guards []Guard[S, E] // all must pass
}

// Graph is a transition table without a current state of its own. Callers keep
// the state in their records and ask the graph where an event leads, which lets
// many records share one definition and stay safe for concurrent use.
type Graph[S, E ~string] struct {
	mu       sync.RWMutex
	edges    map[S]map[E][]Transition[S, E]
	terminal map[S]struct{}
}

// New returns an empty graph.
func New[S, E ~string]() *Graph[S, E] {
	return &Graph[S, E]{
		edges:    make(map[S]map[E][]Transition[S, E]),
		terminal: make(map[S]struct{}),
	}
}

// Add registers an edge. Several edges may share from and event; the first
// whose guards pass wins, in registration order.
func (g *Graph[S, E]) Add(from S, event E, to S, guards ...Guard[S, E]) error {
	if from == "" || to == "" || event == "" {
		return ErrInvalidTransition
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.terminal[from]; ok {
		return NewErrTerminalState(string(from))
	}
	if g.edges[from] == nil {
		g.edges[from] = make(map[E][]Transition[S, E])
	}
	g.edges[from][event] = append(g.edges[from][event], Transition[S, E]{
		From:   from,
		To:     to,
		Event:  event,
		Guards: guards,
	})
	return nil
}

// MustAdd is Add for static graph definitions; it panics on error.
func (g *Graph[S, E]) MustAdd(from S, event E, to S, guards ...Guard[S, E]) *Graph[S, E] {
	if err := g.Add(from, event, to, guards...); err != nil {
		panic(err)
	}
	return g
}

// Terminal marks states that have no outgoing edges.
func (g *Graph[S, E]) Terminal(states ...S) *Graph[S, E] {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range states {
		g.terminal[s] = struct{}{}
	}
	return g
}

// IsTerminal reports whether s was marked terminal.
func (g *Graph[S, E]) IsTerminal(s S) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.terminal[s]
	return ok
}

// Next returns the state event leads to from from.
func (g *Graph[S, E]) Next(ctx context.Context, from S, event E, data any) (S, error) {
	g.mu.RLock()
	candidates := g.edges[from][event]
	g.mu.RUnlock()

	if len(candidates) == 0 {
		return from, NewErrNoTransitionAvailable(string(from), string(event))
	}

	for _, t := range candidates {
		if passes(ctx, t, data) {
			return t.To, nil
		}
	}
	return from, NewErrTransitionRejected(string(from), string(event))
}

// Can reports whether event leads anywhere from from, ignoring guards.
func (g *Graph[S, E]) Can(from S, event E) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges[from][event]) > 0
}

// Allows reports whether some registered edge goes directly from from to to.
func (g *Graph[S, E]) Allows(from, to S) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, ts := range g.edges[from] {
		for _, t := range ts {
			if t.To == to {
				return true
			}
		}
	}
	return false
}

// Edges lists every transition sorted by from state, then event.
func (g *Graph[S, E]) Edges() []Transition[S, E] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Transition[S, E]
	for _, byEvent := range g.edges {
		for _, ts := range byEvent {
			out = append(out, ts...)
		}
	}
	slices.SortStableFunc(out, func(a, b Transition[S, E]) int {
		if c := strings.Compare(string(a.From), string(b.From)); c != 0 {
			return c
		}
		return strings.Compare(string(a.Event), string(b.Event))
	})
	return out
}

func passes[S, E ~string](ctx context.Context, t Transition[S, E], data any) bool {
	for _, guard := range t.Guards {
		if guard != nil && !guard(ctx, t.From, t.Event, data) {
			return false
		}
	}
	return true
}
