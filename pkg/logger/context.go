package logger

import "context"

type (
	requestIDKey   struct{}
	recipientIDKey struct{}
	channelKey     struct{}
)

// WithRequestID stores a notification request id for WithDispatchContext loggers.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// WithRecipientID stores a recipient id for WithDispatchContext loggers.
func WithRecipientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, recipientIDKey{}, id)
}

// WithChannel stores a channel name for WithDispatchContext loggers.
func WithChannel(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, channelKey{}, name)
}
