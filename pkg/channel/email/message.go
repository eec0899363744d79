package email

import (
	"fmt"
	"regexp"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

var addressRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether s looks like a deliverable address.
func ValidAddress(s string) bool {
	return len(s) <= 254 && addressRegex.MatchString(s)
}

// payloadOf extracts the email payload and checks the recipient. Both
// failures are permanent: retrying cannot fix them.
func payloadOf(msg channel.Message) (channel.EmailPayload, error) {
	p, ok := msg.Payload.(channel.EmailPayload)
	if !ok {
		return channel.EmailPayload{}, channel.Permanent(fmt.Errorf("%w: got %T", channel.ErrPayloadMismatch, msg.Payload))
	}
	if !ValidAddress(msg.To) {
		return channel.EmailPayload{}, channel.Permanent(fmt.Errorf("%w: %q", ErrInvalidAddress, msg.To))
	}
	return p, nil
}

func validateSender(cfg Config) error {
	if cfg.SenderEmail == "" {
		return fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if !ValidAddress(cfg.SenderEmail) {
		return fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.SupportEmail != "" && !ValidAddress(cfg.SupportEmail) {
		return fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}
	return nil
}
