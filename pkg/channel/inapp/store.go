package inapp

import (
	"context"
	"time"
)

// Store persists inbox entries. Every method is scoped to one recipient so
// an entry can never be read or changed through another recipient's inbox.
type Store interface {
	// Create stores n. It returns ErrDuplicate when n.ID exists.
	Create(ctx context.Context, n Notification) error
	Get(ctx context.Context, recipientID, id string) (Notification, error)
	// List returns unexpired entries, newest first.
	List(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	// MarkRead marks the given entries read and returns how many changed.
	MarkRead(ctx context.Context, recipientID string, at time.Time, ids ...string) (int, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error)
	Delete(ctx context.Context, recipientID string, ids ...string) error
	// PurgeExpired removes entries expired at now across all recipients.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
