package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// RedactAction selects how a matched value is rewritten.
type RedactAction string

const (
	RedactRemove RedactAction = "remove"
	RedactHash   RedactAction = "hash"
	RedactMask   RedactAction = "mask"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+[1-9]\d{7,14}`)
	tokenPattern = regexp.MustCompile(`(?i)(token|secret|api[_-]?key|password)=\S+`)
)

// Redactor rewrites recipient addresses and credentials that provider
// errors tend to echo back, before the text leaves the process.
type Redactor struct {
	Emails RedactAction
	Phones RedactAction
}

// DefaultRedactor hashes email addresses and masks phone numbers.
func DefaultRedactor() Redactor {
	return Redactor{Emails: RedactHash, Phones: RedactMask}
}

// Redact rewrites s. Credentials in key=value form are always removed.
func (r Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	s = tokenPattern.ReplaceAllString(s, "${1}=[redacted]")
	s = emailPattern.ReplaceAllStringFunc(s, func(m string) string { return apply(r.Emails, m) })
	s = phonePattern.ReplaceAllStringFunc(s, func(m string) string { return apply(r.Phones, m) })
	return s
}

func apply(action RedactAction, v string) string {
	switch action {
	case RedactRemove:
		return "[redacted]"
	case RedactHash:
		sum := sha256.Sum256([]byte(v))
		return "sha256:" + hex.EncodeToString(sum[:8])
	case RedactMask:
		if len(v) <= 4 {
			return "****"
		}
		masked := make([]byte, len(v))
		for i := range masked {
			masked[i] = '*'
		}
		copy(masked[len(v)-4:], v[len(v)-4:])
		return string(masked)
	default:
		return v
	}
}
