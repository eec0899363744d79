package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/preference"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

// expand resolves every recipient of a due request into attempts or
// outcomes. Each step is idempotent, so an expansion interrupted by a
// crash or an unavailable preference source is simply run again.
func (d *Dispatcher) expand(ctx context.Context, id string) {
	ctx, span := d.tracer.Start(ctx, "dispatch.expand", trace.WithAttributes(attribute.String("request.id", id)))
	defer span.End()

	req, err := d.tracker.Request(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load request")
		if !errors.Is(err, tracker.ErrRequestNotFound) {
			d.log.LogAttrs(ctx, slog.LevelError, "load request failed", logger.RequestID(id), logger.Error(err))
			d.requests.Schedule(id, d.now().Add(d.cfg.ExpandRetryDelay), 0)
		}
		return
	}
	if req.State != tracker.RequestPending {
		return
	}
	if req.ScheduledFor.After(d.now()) {
		d.requests.Schedule(id, req.ScheduledFor, req.Priority)
		return
	}
	span.SetAttributes(
		attribute.String("notification.type", req.Type),
		attribute.Int("recipients", len(req.Recipients)),
	)

	requested := req.Channels
	if len(requested) == 0 {
		requested = d.templateChannels(req.Template)
	}

	for _, recipient := range req.Recipients {
		if err := d.expandRecipient(ctx, req, recipient, requested); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "expand recipient")
			d.log.LogAttrs(ctx, slog.LevelWarn, "expansion interrupted, will retry",
				logger.RequestID(id), logger.RecipientID(recipient),
				logger.Delay(d.cfg.ExpandRetryDelay), logger.Error(err))
			d.requests.Schedule(id, d.now().Add(d.cfg.ExpandRetryDelay), req.Priority)
			return
		}
	}

	if err := d.tracker.Expanded(ctx, id); err != nil {
		span.RecordError(err)
		d.log.LogAttrs(ctx, slog.LevelError, "mark expanded failed", logger.RequestID(id), logger.Error(err))
		d.requests.Schedule(id, d.now().Add(d.cfg.ExpandRetryDelay), req.Priority)
		return
	}
	readyQueue.Set(float64(d.ready.Len()))
}

// expandRecipient handles one recipient. It returns an error only for
// failures worth retrying the whole expansion for.
func (d *Dispatcher) expandRecipient(ctx context.Context, req tracker.Request, recipient string, requested []channel.Name) error {
	res, err := d.resolver.Resolve(ctx, recipient, req.Type, requested)
	switch {
	case errors.Is(err, preference.ErrRecipientNotFound):
		return d.outcome(ctx, tracker.Outcome{
			RequestID:   req.ID,
			RecipientID: recipient,
			Kind:        tracker.OutcomeRecipientNotFound,
			Detail:      err.Error(),
		})
	case err != nil:
		return err
	}

	if !res.Eligible() {
		detail := "no requested channel is enabled for the recipient"
		if res.OptedOut {
			detail = "recipient opted out of all notifications"
		}
		return d.outcome(ctx, tracker.Outcome{
			RequestID:   req.ID,
			RecipientID: recipient,
			Kind:        tracker.OutcomeNoEligibleChannel,
			Detail:      detail,
		})
	}

	for _, ch := range res.Channels {
		key := tracker.Key{RequestID: req.ID, RecipientID: recipient, Channel: ch}

		if _, err := d.renderer.Render(req.Template, ch, req.Context); err != nil {
			d.log.LogAttrs(ctx, slog.LevelWarn, "render failed",
				logger.RequestID(req.ID), logger.RecipientID(recipient),
				logger.Channel(string(ch)), logger.Error(err))
			if err := d.outcome(ctx, tracker.Outcome{
				RequestID:   req.ID,
				RecipientID: recipient,
				Channel:     ch,
				Kind:        tracker.OutcomeRenderError,
				Detail:      err.Error(),
			}); err != nil {
				return err
			}
			continue
		}

		a, err := d.tracker.Admit(ctx, key, res.Addresses[ch], req.Priority, d.now())
		if err != nil && !errors.Is(err, tracker.ErrAttemptExists) {
			return err
		}
		if a.State == tracker.StateQueued {
			d.ready.Schedule(key, a.NextAttemptAt, a.Priority)
		}
	}
	return nil
}

func (d *Dispatcher) outcome(ctx context.Context, o tracker.Outcome) error {
	stored, err := d.tracker.RecordOutcome(ctx, o)
	if err != nil {
		return err
	}
	if stored {
		outcomesTotal.WithLabelValues(string(o.Kind)).Inc()
		d.log.LogAttrs(ctx, slog.LevelInfo, "outcome recorded",
			logger.RequestID(o.RequestID), logger.RecipientID(o.RecipientID),
			logger.Channel(string(o.Channel)), slog.String("outcome", string(o.Kind)))
	}
	return nil
}

// templateChannels lists the registered channels the template can render,
// in registry order.
func (d *Dispatcher) templateChannels(name string) []channel.Name {
	supported, err := d.renderer.Channels(name)
	if err != nil {
		return nil
	}
	var out []channel.Name
	for _, ch := range d.channels.Names() {
		if slices.Contains(supported, ch) {
			out = append(out, ch)
		}
	}
	return out
}
