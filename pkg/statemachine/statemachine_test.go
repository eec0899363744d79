package statemachine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/statemachine"
)

type (
	state string
	event string
)

func orderGraph() *statemachine.Graph[state, event] {
	paid := func(_ context.Context, _ state, _ event, data any) bool {
		p, ok := data.(bool)
		return ok && p
	}
	return statemachine.New[state, event]().
		MustAdd("draft", "submit", "review").
		MustAdd("review", "approve", "done", paid).
		MustAdd("review", "approve", "billing").
		MustAdd("review", "reject", "draft").
		Terminal("done")
}

func TestGraph_Next(t *testing.T) {
	t.Parallel()

	g := orderGraph()
	ctx := context.Background()

	tests := []struct {
		name  string
		from  state
		event event
		data  any
		want  state
	}{
		{"simple edge", "draft", "submit", nil, "review"},
		{"guard passes", "review", "approve", true, "done"},
		{"guard fails falls through", "review", "approve", false, "billing"},
		{"loop back", "review", "reject", nil, "draft"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := g.Next(ctx, tt.from, tt.event, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGraph_Errors(t *testing.T) {
	t.Parallel()

	g := orderGraph()
	ctx := context.Background()

	got, err := g.Next(ctx, "done", "submit", nil)
	assert.True(t, statemachine.IsNoTransitionAvailableError(err))
	assert.Equal(t, state("done"), got)

	never := func(context.Context, state, event, any) bool { return false }
	guarded := statemachine.New[state, event]().MustAdd("a", "go", "b", never)
	_, err = guarded.Next(ctx, "a", "go", nil)
	assert.True(t, statemachine.IsTransitionRejectedError(err))

	assert.ErrorIs(t, g.Add("", "x", "y"), statemachine.ErrInvalidTransition)

	var terminalErr *statemachine.ErrTerminalState
	assert.ErrorAs(t, g.Add("done", "reopen", "draft"), &terminalErr)
}

func TestGraph_Introspection(t *testing.T) {
	t.Parallel()

	g := orderGraph()

	assert.True(t, g.Can("draft", "submit"))
	assert.False(t, g.Can("draft", "approve"))
	assert.True(t, g.Allows("review", "billing"))
	assert.False(t, g.Allows("draft", "done"))
	assert.True(t, g.IsTerminal("done"))
	assert.False(t, g.IsTerminal("draft"))

	edges := g.Edges()
	require.Len(t, edges, 4)
	assert.Equal(t, state("draft"), edges[0].From)
	assert.Equal(t, event("approve"), edges[1].Event)
}
