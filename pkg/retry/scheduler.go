package retry

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Scheduler is a time-ordered queue of keys. A key is released by Next no
// earlier than the time it was scheduled for; firing may be late, never early.
// Each key is held at most once: scheduling a held key moves it.
//
// Items due at the same instant are released by descending priority, then in
// scheduling order.
type Scheduler[K comparable] struct {
	mu      sync.Mutex
	items   itemHeap[K]
	index   map[K]*item[K]
	seq     uint64
	changed chan struct{}
	closed  bool
}

// NewScheduler returns an empty scheduler.
func NewScheduler[K comparable]() *Scheduler[K] {
	return &Scheduler[K]{
		index:   make(map[K]*item[K]),
		changed: make(chan struct{}),
	}
}

// Schedule queues key to become due at at.
func (s *Scheduler[K]) Schedule(key K, at time.Time, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.seq++
	if it, ok := s.index[key]; ok {
		it.at, it.priority, it.seq = at, priority, s.seq
		heap.Fix(&s.items, it.pos)
	} else {
		it := &item[K]{key: key, at: at, priority: priority, seq: s.seq}
		heap.Push(&s.items, it)
		s.index[key] = it
	}
	s.notify()
}

// Remove drops key if it is queued.
func (s *Scheduler[K]) Remove(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.index[key]
	if !ok {
		return false
	}
	heap.Remove(&s.items, it.pos)
	delete(s.index, key)
	s.notify()
	return true
}

// Len returns the number of queued keys.
func (s *Scheduler[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// When returns the due time of key.
func (s *Scheduler[K]) When(key K) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.index[key]; ok {
		return it.at, true
	}
	return time.Time{}, false
}

// PopDue removes and returns up to limit keys due at now, in release order.
// A limit <= 0 means no limit.
func (s *Scheduler[K]) PopDue(now time.Time, limit int) []K {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []K
	for len(s.items) > 0 && !s.items[0].at.After(now) {
		if limit > 0 && len(out) >= limit {
			break
		}
		it := heap.Pop(&s.items).(*item[K])
		delete(s.index, it.key)
		out = append(out, it.key)
	}
	return out
}

// Next blocks until a key is due and returns it. Several goroutines may call
// Next concurrently; each key is delivered to exactly one of them.
func (s *Scheduler[K]) Next(ctx context.Context) (K, error) {
	var zero K
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return zero, ErrClosed
		}
		changed := s.changed
		wait := time.Duration(-1)
		if len(s.items) > 0 {
			top := s.items[0]
			wait = time.Until(top.at)
			if wait <= 0 {
				heap.Pop(&s.items)
				delete(s.index, top.key)
				s.mu.Unlock()
				return top.key, nil
			}
		}
		s.mu.Unlock()

		if wait < 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-changed:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Close releases every blocked Next call with ErrClosed and drops queued keys.
func (s *Scheduler[K]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.items = nil
	clear(s.index)
	close(s.changed)
}

// notify wakes every waiter. Caller holds s.mu.
func (s *Scheduler[K]) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

type item[K comparable] struct {
	key      K
	at       time.Time
	priority int
	seq      uint64
	pos      int
}

type itemHeap[K comparable] []*item[K]

func (h itemHeap[K]) Len() int { return len(h) }

func (h itemHeap[K]) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

func (h itemHeap[K]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *itemHeap[K]) Push(x any) {
	it := x.(*item[K])
	it.pos = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap[K]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
