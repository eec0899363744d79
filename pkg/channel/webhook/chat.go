package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

type chatText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatBlock struct {
	Type     string     `json:"type"`
	Text     *chatText  `json:"text,omitempty"`
	Elements []chatText `json:"elements,omitempty"`
}

type chatMessage struct {
	Text   string      `json:"text"`
	Blocks []chatBlock `json:"blocks,omitempty"`
}

// ChatAdapter posts to Slack-compatible incoming webhooks. The recipient
// address is the incoming webhook URL.
type ChatAdapter struct {
	p *poster
}

var _ channel.Adapter = (*ChatAdapter)(nil)

func NewChat(opts ...Option) *ChatAdapter {
	return &ChatAdapter{p: newPoster(opts)}
}

func (a *ChatAdapter) Send(ctx context.Context, msg channel.Message) (channel.Receipt, error) {
	payload, ok := msg.Payload.(channel.ChatPayload)
	if !ok {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("%w: got %T", channel.ErrPayloadMismatch, msg.Payload))
	}
	body, err := json.Marshal(blockKit(payload))
	if err != nil {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("webhook: encode chat message: %w", err))
	}
	if err := a.p.post(ctx, msg.To, msg.ID, body); err != nil {
		return channel.Receipt{}, err
	}
	return channel.Receipt{ProviderRef: msg.ID}, nil
}

// blockKit converts a payload into Block Kit. Text stays as the
// notification fallback.
func blockKit(p channel.ChatPayload) chatMessage {
	out := chatMessage{Text: p.Text}
	for _, b := range p.Blocks {
		switch b.Type {
		case "header":
			out.Blocks = append(out.Blocks, chatBlock{Type: "header", Text: &chatText{Type: "plain_text", Text: b.Text}})
		case "context":
			out.Blocks = append(out.Blocks, chatBlock{Type: "context", Elements: []chatText{{Type: "mrkdwn", Text: b.Text}}})
		default:
			out.Blocks = append(out.Blocks, chatBlock{Type: "section", Text: &chatText{Type: "mrkdwn", Text: b.Text}})
		}
	}
	return out
}
