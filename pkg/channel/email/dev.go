package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// DevAdapter writes every email to a directory instead of sending it: the
// HTML body as <name>.html and everything else as <name>.json.
type DevAdapter struct {
	dir string
	now func() time.Time
}

var _ channel.Adapter = (*DevAdapter)(nil)

// NewDev returns a dev adapter writing to dir, which is created on demand.
func NewDev(dir string) *DevAdapter {
	return &DevAdapter{dir: dir, now: time.Now}
}

type devMetadata struct {
	Timestamp   string `json:"timestamp"`
	MessageID   string `json:"message_id"`
	RequestID   string `json:"request_id"`
	RecipientID string `json:"recipient_id"`
	Type        string `json:"type"`
	SendTo      string `json:"send_to"`
	Subject     string `json:"subject"`
	Tag         string `json:"tag,omitempty"`
	Text        string `json:"text,omitempty"`
}

func (d *DevAdapter) Send(_ context.Context, msg channel.Message) (channel.Receipt, error) {
	p, err := payloadOf(msg)
	if err != nil {
		return channel.Receipt{}, err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return channel.Receipt{}, channel.Transient(fmt.Errorf("create directory: %w", err))
	}

	now := d.now()
	identifier := p.Tag
	if identifier == "" {
		identifier = p.Subject
	}
	base := fmt.Sprintf("%s_%s_%s", now.Format("2006_01_02_150405"), sanitizeFilename(identifier), sanitizeFilename(msg.RecipientID))

	if err := os.WriteFile(filepath.Join(d.dir, base+".html"), []byte(p.HTML), 0o644); err != nil {
		return channel.Receipt{}, channel.Transient(fmt.Errorf("write html: %w", err))
	}

	meta, err := json.MarshalIndent(devMetadata{
		Timestamp:   now.Format(time.RFC3339),
		MessageID:   msg.ID,
		RequestID:   msg.RequestID,
		RecipientID: msg.RecipientID,
		Type:        msg.Type,
		SendTo:      msg.To,
		Subject:     p.Subject,
		Tag:         p.Tag,
		Text:        p.Text,
	}, "", "  ")
	if err != nil {
		return channel.Receipt{}, channel.Permanent(err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return channel.Receipt{}, channel.Transient(fmt.Errorf("write metadata: %w", err))
	}
	return channel.Receipt{ProviderRef: base}, nil
}

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// sanitizeFilename keeps letters, digits, dash, underscore and dot.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
