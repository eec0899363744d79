package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

// Entry is a delivery event as shipped to audit storage.
type Entry struct {
	tracker.Event
	Service string `json:"service,omitempty"`
	// Hash is a SHA-256 fingerprint of the event fields, for tamper checks.
	Hash string `json:"hash"`
}

// NewEntry builds an Entry, computing its hash.
func NewEntry(ev tracker.Event, service string) Entry {
	return Entry{Event: ev, Service: service, Hash: Hash(ev)}
}

// Hash fingerprints the fields an audit reader relies on.
func Hash(ev tracker.Event) string {
	var b strings.Builder
	for _, s := range []string{
		ev.ID, ev.RequestID, ev.RecipientID, string(ev.Channel),
		strconv.Itoa(ev.Sequence), string(ev.Trigger), string(ev.From), string(ev.To),
		string(ev.ErrorClass), ev.Error, string(ev.Outcome), ev.ProviderRef,
		strconv.FormatInt(ev.At.UnixNano(), 10),
	} {
		b.WriteString(s)
		b.WriteByte('|')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether e still matches its hash.
func (e Entry) Verify() bool {
	return e.Hash == Hash(e.Event)
}
