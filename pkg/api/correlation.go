package api

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// CorrelationHeader carries the HTTP correlation id. It is unrelated to
// notification request ids.
const CorrelationHeader = "X-Request-ID"

var correlationPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

type correlationKey struct{}

// Correlation reuses a well-formed X-Request-ID header or generates one,
// stores it in the request context and echoes it in the response.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if !correlationPattern.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

// CorrelationID returns the id stored by Correlation.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// LogExtractor adds the correlation id to log records.
func LogExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := CorrelationID(ctx); id != "" {
			return slog.String("correlation_id", id), true
		}
		return slog.Attr{}, false
	}
}
