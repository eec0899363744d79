package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
)

// Server serves the notification API.
type Server struct {
	dispatcher  Dispatcher
	inbox       Inbox
	log         *slog.Logger
	submitLimit func(http.Handler) http.Handler
	keepAlive   time.Duration
	router      chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithInbox enables the /v1/inbox routes.
func WithInbox(inbox Inbox) Option {
	return func(s *Server) {
		s.inbox = inbox
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSubmitLimit rate limits submissions per key. Requests without a key
// are not limited.
func WithSubmitLimit(b *ratelimiter.Bucket, key ratelimiter.KeyFunc) Option {
	return func(s *Server) {
		s.submitLimit = ratelimiter.Middleware(b, key, func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
			s.render(w, r, Error(http.StatusTooManyRequests, "rate_limited",
				"too many submissions, retry after "+retryAfter.Round(time.Second).String(), nil))
		})
	}
}

// WithStreamKeepAlive sets the comment interval on event streams.
func WithStreamKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// New builds the API router around d.
func New(d Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		log:        logger.Discard(),
		keepAlive:  15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(Correlation, middleware.Recoverer)
	r.NotFound(s.handle(func(*http.Request) Response {
		return Error(http.StatusNotFound, "not_found", "route not found", nil)
	}))
	r.MethodNotAllowed(s.handle(func(*http.Request) Response {
		return Error(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	}))

	r.Route("/v1/notifications", func(r chi.Router) {
		submit := http.Handler(s.handle(s.submit))
		if s.submitLimit != nil {
			submit = s.submitLimit(submit)
		}
		r.Method(http.MethodPost, "/", submit)
		r.Get("/{id}", s.handle(s.status))
		r.Delete("/{id}", s.handle(s.cancel))
		r.Get("/{id}/events", s.events)
	})
	r.Route("/v1/inbox/{recipient}", func(r chi.Router) {
		r.Get("/", s.handle(s.listInbox))
		r.Post("/read", s.handle(s.markAllRead))
		r.Post("/{id}/read", s.handle(s.markRead))
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
