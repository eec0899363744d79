package webhook

import (
	"log/slog"
	"net/http"
	"time"
)

// Config is the environment configuration shared by the webhook and chat
// adapters.
type Config struct {
	SigningSecret    string        `env:"WEBHOOK_SIGNING_SECRET"`
	UserAgent        string        `env:"WEBHOOK_USER_AGENT" envDefault:"dispatchkit-webhook/1.0"`
	FailureThreshold int           `env:"WEBHOOK_CIRCUIT_FAILURES" envDefault:"5"`
	SuccessThreshold int           `env:"WEBHOOK_CIRCUIT_SUCCESSES" envDefault:"2"`
	RecoveryTimeout  time.Duration `env:"WEBHOOK_CIRCUIT_RECOVERY" envDefault:"30s"`
}

// Options converts cfg into adapter options.
func (cfg Config) Options() []Option {
	opts := []Option{
		WithCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.RecoveryTimeout),
	}
	if cfg.SigningSecret != "" {
		opts = append(opts, WithSignature(cfg.SigningSecret))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, WithUserAgent(cfg.UserAgent))
	}
	return opts
}

// Option configures an adapter.
type Option func(*poster)

// WithHTTPClient sets the client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(p *poster) {
		if client != nil {
			p.client = client
		}
	}
}

// WithSignature signs every delivery with HMAC-SHA256. Chat endpoints ignore
// the headers.
func WithSignature(secret string) Option {
	return func(p *poster) {
		p.secret = secret
	}
}

// WithHeader adds a static header to every delivery.
func WithHeader(key, value string) Option {
	return func(p *poster) {
		if key != "" && value != "" {
			p.headers.Set(key, value)
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(p *poster) {
		p.userAgent = ua
	}
}

// WithCircuitBreaker configures the per-host breakers.
func WithCircuitBreaker(failures, successes int, recovery time.Duration) Option {
	return func(p *poster) {
		p.breakers.failures = failures
		p.breakers.success = successes
		p.breakers.recovery = recovery
	}
}

// WithClock overrides the time source for signatures and breakers.
func WithClock(now func() time.Time) Option {
	return func(p *poster) {
		if now != nil {
			p.now = now
			p.breakers.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(p *poster) {
		if log != nil {
			p.log = log
		}
	}
}
