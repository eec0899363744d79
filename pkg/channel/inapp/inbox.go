package inapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/broadcast"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// Config controls inbox retention and live fan-out.
type Config struct {
	// TTL sets ExpiresAt on new entries. Zero keeps entries forever.
	TTL        time.Duration `env:"INAPP_TTL" envDefault:"720h"`
	BufferSize int           `env:"INAPP_SUBSCRIBER_BUFFER" envDefault:"16"`
}

// Inbox stores in-app notifications and pushes new ones to live
// subscribers. Storage is authoritative; fan-out is best effort.
type Inbox struct {
	store Store
	live  *broadcast.MemoryBroadcaster[Notification]
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger
}

// Option configures an Inbox.
type Option func(*Inbox)

func WithConfig(cfg Config) Option {
	return func(in *Inbox) {
		in.ttl = cfg.TTL
		if cfg.BufferSize > 0 {
			in.live = broadcast.NewMemoryBroadcaster[Notification](cfg.BufferSize)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(in *Inbox) {
		if now != nil {
			in.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(in *Inbox) {
		if log != nil {
			in.log = log
		}
	}
}

func NewInbox(store Store, opts ...Option) *Inbox {
	in := &Inbox{
		store: store,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.live == nil {
		in.live = broadcast.NewMemoryBroadcaster[Notification](16)
	}
	return in
}

// Deliver stores n and publishes it to the recipient's subscribers. A
// duplicate id is reported as ErrDuplicate and not published again.
func (in *Inbox) Deliver(ctx context.Context, n Notification) (Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = in.now()
	}
	if n.ExpiresAt == nil && in.ttl > 0 {
		exp := n.CreatedAt.Add(in.ttl)
		n.ExpiresAt = &exp
	}
	if err := in.store.Create(ctx, n); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return n, err
		}
		return n, fmt.Errorf("inapp: store notification: %w", err)
	}

	if err := in.live.Broadcast(ctx, broadcast.Message[Notification]{Topic: n.RecipientID, Data: n}); err != nil {
		in.log.LogAttrs(ctx, slog.LevelWarn, "live delivery failed, notification stored",
			logger.RecipientID(n.RecipientID), slog.String("notification_id", n.ID), logger.Error(err))
	}
	return n, nil
}

// Subscribe streams new notifications for one recipient until ctx ends.
func (in *Inbox) Subscribe(ctx context.Context, recipientID string) broadcast.Subscriber[Notification] {
	return in.live.Subscribe(ctx, recipientID)
}

func (in *Inbox) Get(ctx context.Context, recipientID, id string) (Notification, error) {
	return in.store.Get(ctx, recipientID, id)
}

func (in *Inbox) List(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, error) {
	return in.store.List(ctx, recipientID, opts)
}

func (in *Inbox) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return in.store.CountUnread(ctx, recipientID)
}

// MarkRead returns ErrNotFound when id is not in the recipient's inbox.
func (in *Inbox) MarkRead(ctx context.Context, recipientID, id string) error {
	if _, err := in.store.Get(ctx, recipientID, id); err != nil {
		return err
	}
	_, err := in.store.MarkRead(ctx, recipientID, in.now(), id)
	return err
}

func (in *Inbox) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	return in.store.MarkAllRead(ctx, recipientID, in.now())
}

func (in *Inbox) Delete(ctx context.Context, recipientID string, ids ...string) error {
	return in.store.Delete(ctx, recipientID, ids...)
}

// PurgeExpired drops expired entries and logs how many were removed.
func (in *Inbox) PurgeExpired(ctx context.Context) (int, error) {
	n, err := in.store.PurgeExpired(ctx, in.now())
	if err != nil {
		return 0, fmt.Errorf("inapp: purge expired: %w", err)
	}
	if n > 0 {
		in.log.LogAttrs(ctx, slog.LevelInfo, "purged expired in-app notifications", logger.Count(n))
	}
	return n, nil
}

// Close ends every live subscription.
func (in *Inbox) Close() error {
	return in.live.Close()
}
