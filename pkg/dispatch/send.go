package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

// claimed is an attempt owned by this worker, ready for the adapter.
type claimed struct {
	attempt tracker.Attempt
	msg     channel.Message
}

// flush sends one batch. It runs for every batch the coordinator emits and
// reports each attempt back to the tracker individually.
func (d *Dispatcher) flush(ctx context.Context, name channel.Name, keys []tracker.Key) {
	// Sends in progress finish even when the worker context ends.
	ctx = context.WithoutCancel(ctx)
	batchSize.WithLabelValues(string(name)).Observe(float64(len(keys)))

	ch, err := d.channels.Get(name)
	if err != nil {
		for _, key := range keys {
			d.log.LogAttrs(ctx, slog.LevelError, "attempt for unregistered channel",
				logger.RequestID(key.RequestID), logger.Channel(string(name)))
		}
		return
	}

	requests := make(map[string]tracker.Request)
	var batch []claimed
	for _, key := range keys {
		if c, ok := d.prepare(ctx, ch, key, requests); ok {
			batch = append(batch, c)
		}
	}
	if len(batch) == 0 {
		return
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.send", trace.WithAttributes(
		attribute.String("channel", string(name)),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	results := d.send(ctx, ch, batch)
	failed := 0
	for i, c := range batch {
		if results[i].Err != nil {
			failed++
		}
		d.report(ctx, ch, c.attempt, results[i])
	}
	if failed > 0 {
		span.SetStatus(codes.Error, "some sends failed")
		span.SetAttributes(attribute.Int("batch.failed", failed))
	}
}

// prepare takes a rate-limit token, claims the attempt and renders its
// payload. It returns false when the attempt is not to be sent now.
func (d *Dispatcher) prepare(ctx context.Context, ch channel.Channel, key tracker.Key, requests map[string]tracker.Request) (claimed, bool) {
	attrs := []slog.Attr{
		logger.RequestID(key.RequestID), logger.RecipientID(key.RecipientID), logger.Channel(string(key.Channel)),
	}

	if d.limiter != nil {
		_, err := d.limiter.Acquire(ctx, ch.LimitKey(), 1)
		if wait, throttled := ratelimiter.RetryAfter(err); throttled {
			d.deferAttempt(ctx, key, wait, attrs)
			return claimed{}, false
		}
		if err != nil {
			d.log.LogAttrs(ctx, slog.LevelWarn, "rate limiter unavailable, sending unthrottled",
				append(attrs, logger.Error(err))...)
		}
	}

	a, err := d.tracker.Claim(ctx, key, tracker.ClaimTimeout(d.sendTimeout(ch)))
	switch {
	case err == nil:
	case errors.Is(err, tracker.ErrNotDue):
		d.ready.Schedule(key, a.NextAttemptAt, a.Priority)
		return claimed{}, false
	case errors.Is(err, tracker.ErrNotClaimable), errors.Is(err, tracker.ErrRequestCancelled):
		d.log.LogAttrs(ctx, slog.LevelDebug, "attempt skipped", append(attrs, logger.Error(err))...)
		return claimed{}, false
	default:
		d.log.LogAttrs(ctx, slog.LevelError, "claim failed", append(attrs, logger.Error(err))...)
		d.ready.Schedule(key, d.now().Add(d.cfg.ExpandRetryDelay), a.Priority)
		return claimed{}, false
	}

	req, ok := requests[key.RequestID]
	if !ok {
		req, err = d.tracker.Request(ctx, key.RequestID)
		if err != nil {
			d.fail(ctx, ch, a, channel.Transient(err))
			return claimed{}, false
		}
		requests[key.RequestID] = req
	}

	payload, err := d.renderer.Render(req.Template, key.Channel, req.Context)
	if err != nil {
		d.fail(ctx, ch, a, channel.Permanent(err))
		return claimed{}, false
	}

	return claimed{
		attempt: a,
		msg: channel.Message{
			ID:          key.String(),
			RequestID:   key.RequestID,
			RecipientID: key.RecipientID,
			Type:        req.Type,
			To:          a.Address,
			Payload:     payload,
		},
	}, true
}

func (d *Dispatcher) deferAttempt(ctx context.Context, key tracker.Key, wait time.Duration, attrs []slog.Attr) {
	throttledTotal.WithLabelValues(string(key.Channel)).Inc()
	until := d.now().Add(wait)
	a, err := d.tracker.Defer(ctx, key, until)
	switch {
	case err == nil:
		d.ready.Schedule(key, a.NextAttemptAt, a.Priority)
		d.log.LogAttrs(ctx, slog.LevelDebug, "attempt rate limited", append(attrs, logger.Delay(wait))...)
	case errors.Is(err, tracker.ErrNotClaimable):
	default:
		d.log.LogAttrs(ctx, slog.LevelError, "defer failed", append(attrs, logger.Error(err))...)
		d.ready.Schedule(key, until, a.Priority)
	}
}

// send hands the batch to the adapter. Batch-capable adapters get one call;
// others get one concurrent call per message. Either way the result slice
// is index-aligned with batch.
func (d *Dispatcher) send(ctx context.Context, ch channel.Channel, batch []claimed) []channel.Result {
	timeout := d.sendTimeout(ch)
	start := time.Now()
	defer func() {
		sendDuration.WithLabelValues(string(ch.Name)).Observe(time.Since(start).Seconds())
	}()

	if ba, ok := ch.Adapter.(channel.BatchAdapter); ok && len(batch) > 1 {
		msgs := make([]channel.Message, len(batch))
		for i, c := range batch {
			msgs[i] = c.msg
		}
		sctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		results := ba.SendBatch(sctx, msgs)
		if len(results) != len(msgs) {
			out := make([]channel.Result, len(msgs))
			copy(out, results)
			for i := len(results); i < len(out); i++ {
				out[i].Err = channel.Transient(errMissingResult)
			}
			results = out
		}
		return results
	}

	results := make([]channel.Result, len(batch))
	var wg sync.WaitGroup
	for i, c := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			receipt, err := ch.Adapter.Send(sctx, c.msg)
			results[i] = channel.Result{Receipt: receipt, Err: err}
		}()
	}
	wg.Wait()
	return results
}

// sendTimeout bounds one adapter call on ch.
func (d *Dispatcher) sendTimeout(ch channel.Channel) time.Duration {
	if ch.Timeout > 0 {
		return ch.Timeout
	}
	return d.cfg.SendTimeout
}

// report records one send result.
func (d *Dispatcher) report(ctx context.Context, ch channel.Channel, a tracker.Attempt, res channel.Result) {
	if res.Err == nil {
		if _, err := d.tracker.MarkSent(ctx, a.Key, res.Receipt.ProviderRef); err != nil {
			d.log.LogAttrs(ctx, slog.LevelError, "mark sent failed",
				logger.RequestID(a.RequestID), logger.RecipientID(a.RecipientID),
				logger.Channel(string(a.Channel)), logger.Error(err))
		}
		attemptsTotal.WithLabelValues(string(ch.Name), "sent").Inc()
		return
	}
	d.fail(ctx, ch, a, res.Err)
}

func (d *Dispatcher) fail(ctx context.Context, ch channel.Channel, a tracker.Attempt, cause error) {
	class := ch.Classify(cause)
	if errors.Is(cause, context.DeadlineExceeded) {
		class = channel.ClassTransient
	}
	if class == channel.ClassNone {
		class = channel.ClassTransient
	}
	attemptsTotal.WithLabelValues(string(ch.Name), string(class)).Inc()

	updated, err := d.tracker.Fail(ctx, a.Key, class, cause, channel.RetryAfter(cause))
	if err != nil {
		d.log.LogAttrs(ctx, slog.LevelError, "record failure failed",
			logger.RequestID(a.RequestID), logger.RecipientID(a.RecipientID),
			logger.Channel(string(a.Channel)), logger.Error(err))
		return
	}
	if updated.State == tracker.StateQueued {
		d.ready.Schedule(updated.Key, updated.NextAttemptAt, updated.Priority)
		readyQueue.Set(float64(d.ready.Len()))
	}
}
