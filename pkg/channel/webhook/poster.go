package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// poster is the HTTP delivery core shared by Adapter and ChatAdapter.
type poster struct {
	client    *http.Client
	secret    string
	userAgent string
	headers   http.Header
	breakers  breakers
	now       func() time.Time
	log       *slog.Logger
}

func newPoster(opts []Option) *poster {
	p := &poster{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "dispatchkit-webhook/1.0",
		headers:   make(http.Header),
		breakers:  breakers{now: time.Now},
		now:       time.Now,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// post delivers body to endpoint and maps the response to a channel error
// class. The request deadline comes from ctx.
func (p *poster) post(ctx context.Context, endpoint, id string, body []byte) error {
	u, err := parseEndpoint(endpoint)
	if err != nil {
		return channel.Permanent(err)
	}

	cb := p.breakers.get(u.Host)
	if ok, wait := cb.Allow(); !ok {
		return channel.Transient(fmt.Errorf("%w: %s, retry in %s", ErrCircuitOpen, u.Host, wait))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return channel.Permanent(err)
	}
	for k, v := range p.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.userAgent)
	if id != "" {
		req.Header.Set("Idempotency-Key", id)
	}
	if p.secret != "" {
		sig, err := Sign(p.secret, id, p.now(), body)
		if err != nil {
			return channel.Permanent(err)
		}
		sig.Apply(req.Header)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		cb.RecordFailure()
		if errors.Is(err, context.DeadlineExceeded) {
			return channel.Transient(err)
		}
		return channel.Transient(fmt.Errorf("webhook: post %s: %w", u.Host, err))
	}
	defer func() { _ = resp.Body.Close() }()

	// Bounded read for error context.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		cb.RecordSuccess()
		return nil
	}

	statusErr := fmt.Errorf("%w: %d%s", ErrStatus, resp.StatusCode, describe(snippet))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		cb.RecordFailure()
		return channel.Throttled(statusErr, retryAfter(resp.Header.Get("Retry-After"), p.now()))
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooEarly,
		resp.StatusCode >= 500:
		cb.RecordFailure()
		p.log.LogAttrs(ctx, slog.LevelDebug, "webhook endpoint failed",
			slog.String("host", u.Host), slog.Int("status", resp.StatusCode),
			slog.String("circuit", cb.State().String()))
		return channel.Transient(statusErr)
	default:
		// The endpoint answered; a rejected payload says nothing about its
		// health.
		cb.RecordSuccess()
		p.log.LogAttrs(ctx, slog.LevelWarn, "webhook rejected delivery",
			slog.String("host", u.Host), slog.Int("status", resp.StatusCode), logger.Error(statusErr))
		return channel.Permanent(statusErr)
	}
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: only http and https are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return u, nil
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func describe(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	s := strings.ReplaceAll(string(body), "\n", " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return ": " + s
}
