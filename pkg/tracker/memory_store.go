package tracker

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
// Everything is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]Request
	order    []string
	attempts map[Key]Attempt
	outcomes map[Key]Outcome
	events   map[string][]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]Request),
		attempts: make(map[Key]Attempt),
		outcomes: make(map[Key]Outcome),
		events:   make(map[string][]Event),
	}
}

func (s *MemoryStore) CreateRequest(_ context.Context, req Request) (Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.IdempotencyKey != "" {
		for _, id := range s.order {
			existing := s.requests[id]
			if existing.IdempotencyKey == req.IdempotencyKey && existing.State.Active() {
				return existing.Clone(), false, nil
			}
		}
	}
	if _, ok := s.requests[req.ID]; ok {
		return s.requests[req.ID].Clone(), false, nil
	}

	s.requests[req.ID] = req.Clone()
	s.order = append(s.order, req.ID)
	return req.Clone(), true, nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	return req.Clone(), nil
}

func (s *MemoryStore) SetRequestState(_ context.Context, id string, to RequestState, at time.Time, from ...RequestState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return false, ErrRequestNotFound
	}
	if len(from) > 0 && !slices.Contains(from, req.State) {
		return false, nil
	}
	req.State = to
	req.UpdatedAt = at
	s.requests[id] = req
	return true, nil
}

func (s *MemoryStore) ListRequests(_ context.Context, states ...RequestState) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Request
	for _, id := range s.order {
		req := s.requests[id]
		if len(states) == 0 || slices.Contains(states, req.State) {
			out = append(out, req.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertAttempt(_ context.Context, a Attempt, events ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[a.Key]; ok {
		return ErrAttemptExists
	}
	a.Version = 1
	s.attempts[a.Key] = a
	s.appendEvents(events)
	return nil
}

func (s *MemoryStore) GetAttempt(_ context.Context, key Key) (Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[key]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (s *MemoryStore) UpdateAttempt(_ context.Context, a Attempt, events ...Event) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.attempts[a.Key]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if current.Version != a.Version {
		return current, ErrVersionConflict
	}
	a.Version++
	s.attempts[a.Key] = a
	s.appendEvents(events)
	return a, nil
}

func (s *MemoryStore) ListAttempts(_ context.Context, requestID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attempt
	for k, a := range s.attempts {
		if k.RequestID == requestID {
			out = append(out, a)
		}
	}
	sortAttempts(out)
	return out, nil
}

func (s *MemoryStore) ListAttemptsByState(_ context.Context, states ...State) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attempt
	for _, a := range s.attempts {
		if slices.Contains(states, a.State) {
			out = append(out, a)
		}
	}
	sortAttempts(out)
	return out, nil
}

func (s *MemoryStore) PutOutcome(_ context.Context, o Outcome, events ...Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := Key{RequestID: o.RequestID, RecipientID: o.RecipientID, Channel: o.Channel}
	if _, ok := s.outcomes[k]; ok {
		return false, nil
	}
	s.outcomes[k] = o
	s.appendEvents(events)
	return true, nil
}

func (s *MemoryStore) ListOutcomes(_ context.Context, requestID string) ([]Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Outcome
	for k, o := range s.outcomes {
		if k.RequestID == requestID {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b Outcome) int {
		return cmp.Or(cmp.Compare(a.RecipientID, b.RecipientID), cmp.Compare(a.Channel, b.Channel))
	})
	return out, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, requestID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[requestID]), nil
}

func (s *MemoryStore) appendEvents(events []Event) {
	for _, ev := range events {
		s.events[ev.RequestID] = append(s.events[ev.RequestID], ev)
	}
}

func sortAttempts(as []Attempt) {
	slices.SortFunc(as, func(a, b Attempt) int {
		return cmp.Or(
			cmp.Compare(a.RequestID, b.RequestID),
			cmp.Compare(a.RecipientID, b.RecipientID),
			cmp.Compare(a.Channel, b.Channel),
		)
	})
}
