package inapp_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/channel/inapp"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s inapp.Store, recipient string, n int) {
	t.Helper()
	for i := range n {
		require.NoError(t, s.Create(context.Background(), inapp.Notification{
			ID:          fmt.Sprintf("%s-%d", recipient, i),
			RecipientID: recipient,
			Type:        "welcome",
			Title:       fmt.Sprintf("title %d", i),
			CreatedAt:   epoch.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestMemoryStore_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := inapp.NewMemoryStore()

	require.NoError(t, s.Create(ctx, inapp.Notification{ID: "n1", RecipientID: "usr-1"}))
	assert.ErrorIs(t, s.Create(ctx, inapp.Notification{ID: "n1", RecipientID: "usr-2"}), inapp.ErrDuplicate)
	assert.ErrorIs(t, s.Create(ctx, inapp.Notification{RecipientID: "usr-1"}), inapp.ErrInvalidEntry)
	assert.ErrorIs(t, s.Create(ctx, inapp.Notification{ID: "n2"}), inapp.ErrInvalidEntry)

	got, err := s.Get(ctx, "usr-1", "n1")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, "usr-2", "n1")
	assert.ErrorIs(t, err, inapp.ErrNotFound)
}

func TestMemoryStore_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := inapp.NewMemoryStore(inapp.WithStoreClock(func() time.Time { return epoch.Add(time.Hour) }))
	seed(t, s, "usr-1", 5)

	expired := epoch.Add(30 * time.Minute)
	require.NoError(t, s.Create(ctx, inapp.Notification{
		ID: "old", RecipientID: "usr-1", Type: "welcome", CreatedAt: epoch.Add(10 * time.Minute), ExpiresAt: &expired,
	}))
	require.NoError(t, s.Create(ctx, inapp.Notification{
		ID: "alert", RecipientID: "usr-1", Type: "alert", CreatedAt: epoch.Add(-time.Minute),
	}))
	_, err := s.MarkRead(ctx, "usr-1", epoch, "usr-1-4")
	require.NoError(t, err)

	since := epoch.Add(2 * time.Minute)
	tests := []struct {
		name string
		opts inapp.ListOptions
		want []string
	}{
		{"newest first, expired hidden", inapp.ListOptions{}, []string{"usr-1-4", "usr-1-3", "usr-1-2", "usr-1-1", "usr-1-0", "alert"}},
		{"page", inapp.ListOptions{Limit: 2, Offset: 1}, []string{"usr-1-3", "usr-1-2"}},
		{"offset past end", inapp.ListOptions{Offset: 10}, []string{}},
		{"unread only", inapp.ListOptions{OnlyUnread: true, Limit: 2}, []string{"usr-1-3", "usr-1-2"}},
		{"by type", inapp.ListOptions{Types: []string{"alert"}}, []string{"alert"}},
		{"since", inapp.ListOptions{Since: &since}, []string{"usr-1-4", "usr-1-3", "usr-1-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := s.List(ctx, "usr-1", tt.opts)
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, n := range got {
				ids[i] = n.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryStore_ReadState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := inapp.NewMemoryStore()
	seed(t, s, "usr-1", 3)
	seed(t, s, "usr-2", 1)

	count, err := s.CountUnread(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	changed, err := s.MarkRead(ctx, "usr-1", epoch, "usr-1-0", "usr-2-0")
	require.NoError(t, err)
	assert.Equal(t, 1, changed, "another recipient's entry is untouched")

	changed, err = s.MarkRead(ctx, "usr-1", epoch, "usr-1-0")
	require.NoError(t, err)
	assert.Zero(t, changed)

	got, err := s.Get(ctx, "usr-1", "usr-1-0")
	require.NoError(t, err)
	assert.True(t, got.Read)
	require.NotNil(t, got.ReadAt)
	assert.True(t, epoch.Equal(*got.ReadAt))

	changed, err = s.MarkAllRead(ctx, "usr-1", epoch)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	count, err = s.CountUnread(ctx, "usr-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = s.CountUnread(ctx, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStore_DeleteAndPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := inapp.NewMemoryStore()
	seed(t, s, "usr-1", 2)

	exp := epoch.Add(time.Hour)
	require.NoError(t, s.Create(ctx, inapp.Notification{ID: "tmp", RecipientID: "usr-2", ExpiresAt: &exp}))

	require.NoError(t, s.Delete(ctx, "usr-1", "usr-1-0"))
	_, err := s.Get(ctx, "usr-1", "usr-1-0")
	assert.ErrorIs(t, err, inapp.ErrNotFound)

	// A deleted id can be reused.
	require.NoError(t, s.Create(ctx, inapp.Notification{ID: "usr-1-0", RecipientID: "usr-1"}))

	purged, err := s.PurgeExpired(ctx, epoch.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, purged)

	purged, err = s.PurgeExpired(ctx, exp)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	_, err = s.Get(ctx, "usr-2", "tmp")
	assert.ErrorIs(t, err, inapp.ErrNotFound)
}
