package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// Envelope is the JSON body posted to webhook endpoints.
type Envelope struct {
	ID          string         `json:"id"`
	Event       string         `json:"event"`
	RequestID   string         `json:"request_id"`
	RecipientID string         `json:"recipient_id"`
	Type        string         `json:"type"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Data        map[string]any `json:"data,omitempty"`
}

// Adapter posts structured events to the recipient's endpoint URL.
type Adapter struct {
	p *poster
}

var _ channel.Adapter = (*Adapter)(nil)

func New(opts ...Option) *Adapter {
	return &Adapter{p: newPoster(opts)}
}

func (a *Adapter) Send(ctx context.Context, msg channel.Message) (channel.Receipt, error) {
	payload, ok := msg.Payload.(channel.WebhookPayload)
	if !ok {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("%w: got %T", channel.ErrPayloadMismatch, msg.Payload))
	}
	event := payload.Event
	if event == "" {
		event = msg.Type
	}
	body, err := json.Marshal(Envelope{
		ID:          msg.ID,
		Event:       event,
		RequestID:   msg.RequestID,
		RecipientID: msg.RecipientID,
		Type:        msg.Type,
		OccurredAt:  a.p.now().UTC(),
		Data:        payload.Data,
	})
	if err != nil {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("webhook: encode envelope: %w", err))
	}
	if err := a.p.post(ctx, msg.To, msg.ID, body); err != nil {
		return channel.Receipt{}, err
	}
	return channel.Receipt{ProviderRef: msg.ID}, nil
}

// CircuitState reports the breaker state for an endpoint host.
func (a *Adapter) CircuitState(host string) CircuitState {
	return a.p.breakers.get(host).State()
}
