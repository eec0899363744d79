package inapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// namespace derives inbox entry ids from message ids.
var namespace = uuid.MustParse("6f1c2b8e-4a3d-5e7f-9b1a-0c2d3e4f5a6b")

// Adapter is the in-app channel. The address is the inbox owner, which the
// preference resolver defaults to the recipient id.
type Adapter struct {
	inbox *Inbox
}

var _ channel.Adapter = (*Adapter)(nil)

func NewAdapter(inbox *Inbox) *Adapter {
	return &Adapter{inbox: inbox}
}

// Send stores the entry under an id derived from msg.ID, so a retried
// attempt never creates a second inbox entry.
func (a *Adapter) Send(ctx context.Context, msg channel.Message) (channel.Receipt, error) {
	p, ok := msg.Payload.(channel.InAppPayload)
	if !ok {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("%w: got %T", channel.ErrPayloadMismatch, msg.Payload))
	}
	owner := msg.To
	if owner == "" {
		owner = msg.RecipientID
	}

	n := Notification{
		ID:          EntryID(msg.ID),
		RecipientID: owner,
		RequestID:   msg.RequestID,
		Type:        msg.Type,
		Title:       p.Title,
		Message:     p.Message,
		Link:        p.Link,
		Data:        p.Data,
	}
	_, err := a.inbox.Deliver(ctx, n)
	switch {
	case err == nil, errors.Is(err, ErrDuplicate):
		return channel.Receipt{ProviderRef: n.ID}, nil
	case errors.Is(err, ErrInvalidEntry):
		return channel.Receipt{}, channel.Permanent(err)
	default:
		return channel.Receipt{}, channel.Transient(err)
	}
}

// EntryID is the inbox entry id for a message id.
func EntryID(messageID string) string {
	return uuid.NewSHA1(namespace, []byte(messageID)).String()
}
