package inapp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/inapp"
)

func TestAdapter_Send(t *testing.T) {
	t.Parallel()

	in := newInbox(t, func() time.Time { return epoch })
	a := inapp.NewAdapter(in)
	ctx := context.Background()

	msg := channel.Message{
		ID:          "req-1/usr-1/in_app",
		RequestID:   "req-1",
		RecipientID: "usr-1",
		Type:        "welcome",
		Payload: channel.InAppPayload{
			Title:   "Welcome",
			Message: "Glad you're here",
			Link:    "/start",
			Data:    map[string]any{"step": 1},
		},
	}

	receipt, err := a.Send(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, inapp.EntryID(msg.ID), receipt.ProviderRef)

	// A retried attempt resolves to the same entry.
	again, err := a.Send(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, receipt.ProviderRef, again.ProviderRef)

	list, err := in.List(ctx, "usr-1", inapp.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Welcome", list[0].Title)
	assert.Equal(t, "req-1", list[0].RequestID)
	assert.Equal(t, "welcome", list[0].Type)
	assert.Equal(t, "/start", list[0].Link)
}

func TestAdapter_Send_PayloadMismatch(t *testing.T) {
	t.Parallel()

	a := inapp.NewAdapter(newInbox(t, time.Now))
	_, err := a.Send(context.Background(), channel.Message{RecipientID: "usr-1", Payload: channel.SMSPayload{Text: "x"}})
	assert.ErrorIs(t, err, channel.ErrPayloadMismatch)
	assert.Equal(t, channel.ClassPermanent, channel.Classify(err))
}

func TestEntryID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, inapp.EntryID("a"), inapp.EntryID("a"))
	assert.NotEqual(t, inapp.EntryID("a"), inapp.EntryID("b"))
}
