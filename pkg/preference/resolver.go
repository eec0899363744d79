package preference

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// Resolution is the outcome of resolving one recipient.
type Resolution struct {
	RecipientID string
	// Channels are the eligible channels in requested order. Empty means the
	// recipient has no eligible channel.
	Channels []channel.Name
	// Addresses holds the address for every eligible channel.
	Addresses map[channel.Name]string
	// OptedOut is set when a global opt-out removed every channel.
	OptedOut bool
}

// Eligible reports whether any channel survived resolution.
func (r Resolution) Eligible() bool {
	return len(r.Channels) > 0
}

// Resolver decides which channels a notification may use for a recipient.
type Resolver struct {
	source    Source
	supported func() []channel.Name
}

// NewResolver builds a resolver over source. supported lists the channels
// used when a request does not name any.
func NewResolver(source Source, supported func() []channel.Name) *Resolver {
	return &Resolver{source: source, supported: supported}
}

// Resolve returns requested ∩ enabled-for-type, or nothing for an opted-out
// recipient. A channel enabled without an address is not eligible.
// Preferences are read once here; later changes do not affect attempts
// already created from this result.
func (r *Resolver) Resolve(ctx context.Context, recipientID, notificationType string, requested []channel.Name) (Resolution, error) {
	pref, err := r.source.Preferences(ctx, recipientID, notificationType)
	if err != nil {
		if errors.Is(err, ErrRecipientNotFound) {
			return Resolution{}, err
		}
		return Resolution{}, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, recipientID, err)
	}

	res := Resolution{RecipientID: recipientID, Addresses: make(map[channel.Name]string)}
	if pref.OptOut {
		res.OptedOut = true
		return res, nil
	}

	if len(requested) == 0 && r.supported != nil {
		requested = r.supported()
	}

	seen := make(map[channel.Name]struct{}, len(requested))
	for _, ch := range requested {
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}

		if !pref.Enabled(ch) {
			continue
		}
		addr := pref.Addresses[ch]
		if addr == "" && ch != channel.InApp {
			continue
		}
		if addr == "" {
			addr = recipientID
		}
		res.Channels = append(res.Channels, ch)
		res.Addresses[ch] = addr
	}
	return res, nil
}
