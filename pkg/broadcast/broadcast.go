package broadcast

import (
	"context"
	"sync"
)

// Message wraps data of type T with the topic it was published on.
type Message[T any] struct {
	Topic string
	Data  T
}

// Subscriber receives messages from a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the channel messages arrive on. It is closed when the
	// subscriber is closed, its context ends, or it falls behind.
	Receive() <-chan Message[T]

	// Close is idempotent.
	Close() error
}

// Broadcaster fans messages out to subscribers. Slow consumers are dropped
// rather than allowed to block publishers.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber for the given topics, or for every
	// topic when none are given. The subscription ends with ctx.
	Subscribe(ctx context.Context, topics ...string) Subscriber[T]

	// Broadcast delivers msg to every subscriber of msg.Topic.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Close closes every subscriber.
	Close() error
}

type subscriber[T any] struct {
	ch     chan Message[T]
	topics map[string]struct{}
	closed bool
	mu     sync.RWMutex
}

func newSubscriber[T any](bufferSize int, topics []string) *subscriber[T] {
	s := &subscriber[T]{ch: make(chan Message[T], bufferSize)}
	if len(topics) > 0 {
		s.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			s.topics[t] = struct{}{}
		}
	}
	return s
}

func (s *subscriber[T]) Receive() <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

func (s *subscriber[T]) wants(topic string) bool {
	if s.topics == nil {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// send reports false when the subscriber is closed or its buffer is full.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
