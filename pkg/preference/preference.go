package preference

import (
	"context"
	"maps"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// RecipientPreference is what the preference owner knows about one recipient
// for one notification type.
type RecipientPreference struct {
	RecipientID string
	// Channels maps a channel to whether the recipient accepts this type on it.
	// Missing channels are disabled.
	Channels map[channel.Name]bool
	// OptOut suppresses every channel regardless of Channels.
	OptOut bool
	// Addresses holds the recipient's address per channel (email, phone
	// number, device endpoint, webhook URL).
	Addresses map[channel.Name]string
}

// Enabled reports whether the recipient accepts ch.
func (p RecipientPreference) Enabled(ch channel.Name) bool {
	return !p.OptOut && p.Channels[ch]
}

// Clone returns a deep copy.
func (p RecipientPreference) Clone() RecipientPreference {
	p.Channels = maps.Clone(p.Channels)
	p.Addresses = maps.Clone(p.Addresses)
	return p
}

// Source is the read-only preference owner. Unknown recipients return
// ErrRecipientNotFound.
type Source interface {
	Preferences(ctx context.Context, recipientID, notificationType string) (RecipientPreference, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, recipientID, notificationType string) (RecipientPreference, error)

func (f SourceFunc) Preferences(ctx context.Context, recipientID, notificationType string) (RecipientPreference, error) {
	return f(ctx, recipientID, notificationType)
}
