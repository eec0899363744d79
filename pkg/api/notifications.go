package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/dispatchkit/pkg/broadcast"
	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

// Dispatcher is the part of *dispatch.Dispatcher the API serves.
type Dispatcher interface {
	Submit(ctx context.Context, req dispatch.Request) (dispatch.Handle, error)
	Cancel(ctx context.Context, requestID string) error
	Status(ctx context.Context, requestID string) (tracker.Report, error)
	Subscribe(ctx context.Context, requestID string) broadcast.Subscriber[tracker.Event]
}

type submitRequest struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Type           string         `json:"type"`
	Recipients     []string       `json:"recipients"`
	Template       string         `json:"template"`
	Context        map[string]any `json:"context"`
	Channels       []channel.Name `json:"channels"`
	ScheduledFor   *time.Time     `json:"scheduled_for"`
	Priority       int            `json:"priority"`
}

func (s submitRequest) request() dispatch.Request {
	req := dispatch.Request{
		IdempotencyKey: s.IdempotencyKey,
		Type:           s.Type,
		Recipients:     s.Recipients,
		Template:       s.Template,
		Context:        s.Context,
		Channels:       s.Channels,
		Priority:       s.Priority,
	}
	if s.ScheduledFor != nil {
		req.ScheduledFor = *s.ScheduledFor
	}
	return req
}

type handleResponse struct {
	RequestID    string               `json:"request_id"`
	Duplicate    bool                 `json:"duplicate"`
	State        tracker.RequestState `json:"state"`
	ScheduledFor *time.Time           `json:"scheduled_for,omitempty"`
}

func newHandleResponse(h dispatch.Handle) handleResponse {
	resp := handleResponse{RequestID: h.RequestID, Duplicate: h.Duplicate, State: h.State}
	if !h.ScheduledFor.IsZero() {
		at := h.ScheduledFor.UTC()
		resp.ScheduledFor = &at
	}
	return resp
}

func (s *Server) submit(r *http.Request) Response {
	var body submitRequest
	if err := bindJSON(r, &body); err != nil {
		return s.fail(r, err)
	}

	h, err := s.dispatcher.Submit(r.Context(), body.request())
	if err != nil {
		return s.fail(r, err)
	}

	status := http.StatusAccepted
	if h.Duplicate {
		status = http.StatusOK
	}
	return JSON(status, newHandleResponse(h), nil)
}

func (s *Server) status(r *http.Request) Response {
	report, err := s.dispatcher.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return s.fail(r, err)
	}
	return JSON(http.StatusOK, report, nil)
}

func (s *Server) cancel(r *http.Request) Response {
	id := chi.URLParam(r, "id")
	if err := s.dispatcher.Cancel(r.Context(), id); err != nil {
		return s.fail(r, err)
	}
	return JSON(http.StatusAccepted, map[string]string{"request_id": id, "state": string(tracker.RequestCancelled)}, nil)
}

// events streams the request's delivery events as server-sent events. The
// stream ends with a "done" event carrying the final report, sent right away
// for a request that has already finished.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.render(w, r, Error(http.StatusNotImplemented, "streaming_unsupported", "streaming is not supported", nil))
		return
	}

	// Subscribe before reading the status so a request finishing in between
	// still delivers its final event.
	sub := s.dispatcher.Subscribe(ctx, id)
	defer sub.Close()

	report, err := s.dispatcher.Status(ctx, id)
	if err != nil {
		s.render(w, r, s.fail(r, err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if report.Done() {
		writeEvent(w, "done", report)
		flusher.Flush()
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-sub.Receive():
			if !ok {
				return
			}
			if !msg.Data.Final() {
				writeEvent(w, "transition", msg.Data)
				flusher.Flush()
				continue
			}
			final, err := s.dispatcher.Status(ctx, id)
			if err != nil {
				s.log.LogAttrs(ctx, slog.LevelError, "final report unavailable", logger.RequestID(id), logger.Error(err))
				return
			}
			writeEvent(w, "done", final)
			flusher.Flush()
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
