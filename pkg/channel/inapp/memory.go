package inapp

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	inbox map[string][]Notification // recipient id -> entries
	ids   map[string]string          // entry id -> recipient id
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithStoreClock sets the time source used to hide expired entries.
func WithStoreClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		inbox: make(map[string][]Notification),
		ids:   make(map[string]string),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, n Notification) error {
	if n.ID == "" || n.RecipientID == "" {
		return fmt.Errorf("%w: id and recipient are required", ErrInvalidEntry)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[n.ID]; ok {
		return ErrDuplicate
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.ids[n.ID] = n.RecipientID
	s.inbox[n.RecipientID] = append(s.inbox[n.RecipientID], n)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, recipientID, id string) (Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.inbox[recipientID] {
		if n.ID == id {
			return n, nil
		}
	}
	return Notification{}, ErrNotFound
}

func (s *MemoryStore) List(_ context.Context, recipientID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]Notification, 0, len(s.inbox[recipientID]))
	for _, n := range s.inbox[recipientID] {
		if n.Expired(now) {
			continue
		}
		if opts.OnlyUnread && n.Read {
			continue
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, n.Type) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		out = append(out, n)
	}
	slices.SortStableFunc(out, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if opts.Offset >= len(out) {
		return []Notification{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	count := 0
	for _, n := range s.inbox[recipientID] {
		if !n.Read && !n.Expired(now) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, recipientID string, at time.Time, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	entries := s.inbox[recipientID]
	for i := range entries {
		if entries[i].Read || !slices.Contains(ids, entries[i].ID) {
			continue
		}
		markRead(&entries[i], at)
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, recipientID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	entries := s.inbox[recipientID]
	for i := range entries {
		if entries[i].Read {
			continue
		}
		markRead(&entries[i], at)
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) Delete(_ context.Context, recipientID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inbox[recipientID] = slices.DeleteFunc(s.inbox[recipientID], func(n Notification) bool {
		if slices.Contains(ids, n.ID) {
			delete(s.ids, n.ID)
			return true
		}
		return false
	})
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for recipient, entries := range s.inbox {
		kept := slices.DeleteFunc(entries, func(n Notification) bool {
			if n.Expired(now) {
				delete(s.ids, n.ID)
				purged++
				return true
			}
			return false
		})
		if len(kept) == 0 {
			delete(s.inbox, recipient)
			continue
		}
		s.inbox[recipient] = kept
	}
	return purged, nil
}

func markRead(n *Notification, at time.Time) {
	n.Read = true
	n.ReadAt = &at
}
