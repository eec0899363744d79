package inapp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/channel/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

func newInbox(t *testing.T, now func() time.Time) *inapp.Inbox {
	t.Helper()
	in := inapp.NewInbox(
		inapp.NewMemoryStore(inapp.WithStoreClock(now)),
		inapp.WithConfig(inapp.Config{TTL: 24 * time.Hour, BufferSize: 4}),
		inapp.WithClock(now),
		inapp.WithLogger(logger.Discard()),
	)
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func TestInbox_Deliver(t *testing.T) {
	t.Parallel()

	now := func() time.Time { return epoch }
	in := newInbox(t, now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := in.Subscribe(ctx, "usr-1")
	theirs := in.Subscribe(ctx, "usr-2")

	stored, err := in.Deliver(ctx, inapp.Notification{ID: "n1", RecipientID: "usr-1", Title: "Hi"})
	require.NoError(t, err)
	assert.True(t, epoch.Equal(stored.CreatedAt))
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, epoch.Add(24*time.Hour).Equal(*stored.ExpiresAt))

	select {
	case msg := <-mine.Receive():
		assert.Equal(t, "n1", msg.Data.ID)
		assert.Equal(t, "usr-1", msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the notification")
	}
	select {
	case msg := <-theirs.Receive():
		t.Fatalf("unexpected delivery to another recipient: %v", msg.Data.ID)
	default:
	}

	_, err = in.Deliver(ctx, inapp.Notification{ID: "n1", RecipientID: "usr-1"})
	assert.ErrorIs(t, err, inapp.ErrDuplicate)
	select {
	case <-mine.Receive():
		t.Fatal("duplicate must not be published")
	default:
	}
}

func TestInbox_ReadAndPurge(t *testing.T) {
	t.Parallel()

	clock := epoch
	in := newInbox(t, func() time.Time { return clock })
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := in.Deliver(ctx, inapp.Notification{ID: id, RecipientID: "usr-1"})
		require.NoError(t, err)
	}

	require.NoError(t, in.MarkRead(ctx, "usr-1", "a"))
	assert.ErrorIs(t, in.MarkRead(ctx, "usr-2", "a"), inapp.ErrNotFound)

	unread, err := in.CountUnread(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	changed, err := in.MarkAllRead(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	require.NoError(t, in.Delete(ctx, "usr-1", "c"))
	list, err := in.List(ctx, "usr-1", inapp.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	clock = epoch.Add(25 * time.Hour)
	purged, err := in.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)
}
