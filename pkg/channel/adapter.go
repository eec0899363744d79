package channel

import "context"

// Message is one rendered notification addressed to one recipient.
type Message struct {
	// ID is stable across retries of the same attempt; providers that support
	// idempotency keys should receive it.
	ID          string
	RequestID   string
	RecipientID string
	// Type is the notification type, e.g. "welcome".
	Type    string
	To      string
	Payload Payload
}

// Receipt is a provider acknowledgment.
type Receipt struct {
	ProviderRef string
}

// Adapter sends through one transport. Implementations must be safe for
// concurrent use and should honour ctx cancellation.
type Adapter interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// Result is the per-message outcome of a batch send.
type Result struct {
	Receipt Receipt
	Err     error
}

// BatchAdapter is implemented by adapters whose provider accepts several
// messages per call. Results are index-aligned with msgs; one failed message
// never fails the others.
type BatchAdapter interface {
	Adapter
	SendBatch(ctx context.Context, msgs []Message) []Result
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc func(ctx context.Context, msg Message) (Receipt, error)

func (f AdapterFunc) Send(ctx context.Context, msg Message) (Receipt, error) {
	return f(ctx, msg)
}
