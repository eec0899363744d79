package logger

import (
	"log/slog"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// RequestID records the notification request identifier under "request_id".
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// RecipientID records the recipient identifier under "recipient_id".
func RecipientID(id string) slog.Attr {
	return slog.String("recipient_id", id)
}

// Channel records the delivery channel under "channel".
func Channel(name string) slog.Attr {
	return slog.String("channel", name)
}

// Attempt records the attempt sequence number under "attempt".
func Attempt(seq int) slog.Attr {
	return slog.Int("attempt", seq)
}

// State records a delivery state under "state".
func State(s string) slog.Attr {
	return slog.String("state", s)
}

// NotificationType records the notification type under "notification_type".
func NotificationType(t string) slog.Attr {
	return slog.String("notification_type", t)
}

// ProviderRef records a provider reference id under "provider_ref".
func ProviderRef(ref string) slog.Attr {
	return slog.String("provider_ref", ref)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Delay records a scheduling delay under "delay".
func Delay(d time.Duration) slog.Attr {
	return slog.Duration("delay", d)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func Count(n int) slog.Attr {
	return slog.Int("count", n)
}
