package channel

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrymomot/dispatchkit/pkg/retry"
)

// Registry holds the channels a dispatcher can use.
type Registry struct {
	mu       sync.RWMutex
	channels map[Name]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[Name]Channel)}
}

// Register validates and adds ch.
func (r *Registry) Register(ch Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[ch.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, ch.Name)
	}
	r.channels[ch.Name] = ch
	return nil
}

// Get returns the channel registered under name.
func (r *Registry) Get(name Name) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	if !ok {
		return Channel{}, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return ch, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[name]
	return ok
}

// Names lists registered channels in sorted order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]Name, 0, len(r.channels))
	for n := range r.channels {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Policy returns the retry policy of name, or retry.DefaultPolicy for an
// unknown channel.
func (r *Registry) Policy(name Name) retry.Policy {
	ch, err := r.Get(name)
	if err != nil {
		return retry.DefaultPolicy()
	}
	return ch.Retry
}
