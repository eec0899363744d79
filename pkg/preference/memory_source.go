package preference

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// Profile is a recipient's stored settings in MemorySource.
type Profile struct {
	RecipientID string
	OptOut      bool
	Addresses   map[channel.Name]string
	// Defaults apply to every notification type.
	Defaults map[channel.Name]bool
	// Types override Defaults per notification type.
	Types map[string]map[channel.Name]bool
}

// MemorySource is an in-process Source, used in tests and by deployments that
// push preferences into the dispatcher.
type MemorySource struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemorySource() *MemorySource {
	return &MemorySource{profiles: make(map[string]Profile)}
}

// Put stores or replaces a profile.
func (s *MemorySource) Put(p Profile) {
	p.Addresses = maps.Clone(p.Addresses)
	p.Defaults = maps.Clone(p.Defaults)
	types := make(map[string]map[channel.Name]bool, len(p.Types))
	for t, chans := range p.Types {
		types[t] = maps.Clone(chans)
	}
	p.Types = types

	s.mu.Lock()
	s.profiles[p.RecipientID] = p
	s.mu.Unlock()
}

// SetOptOut toggles the global opt-out of an existing recipient.
func (s *MemorySource) SetOptOut(recipientID string, optOut bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[recipientID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecipientNotFound, recipientID)
	}
	p.OptOut = optOut
	s.profiles[recipientID] = p
	return nil
}

// SetChannel enables or disables ch for one notification type.
func (s *MemorySource) SetChannel(recipientID, notificationType string, ch channel.Name, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[recipientID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecipientNotFound, recipientID)
	}
	if p.Types[notificationType] == nil {
		p.Types[notificationType] = make(map[channel.Name]bool)
	}
	p.Types[notificationType][ch] = enabled
	s.profiles[recipientID] = p
	return nil
}

// Delete removes a recipient.
func (s *MemorySource) Delete(recipientID string) {
	s.mu.Lock()
	delete(s.profiles, recipientID)
	s.mu.Unlock()
}

func (s *MemorySource) Preferences(_ context.Context, recipientID, notificationType string) (RecipientPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[recipientID]
	if !ok {
		return RecipientPreference{}, fmt.Errorf("%w: %s", ErrRecipientNotFound, recipientID)
	}

	chans := maps.Clone(p.Defaults)
	if chans == nil {
		chans = make(map[channel.Name]bool)
	}
	maps.Copy(chans, p.Types[notificationType])

	return RecipientPreference{
		RecipientID: recipientID,
		Channels:    chans,
		OptOut:      p.OptOut,
		Addresses:   maps.Clone(p.Addresses),
	}, nil
}
