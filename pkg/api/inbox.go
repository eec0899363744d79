package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/dispatchkit/pkg/channel/inapp"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Inbox is the part of *inapp.Inbox the API serves.
type Inbox interface {
	List(ctx context.Context, recipientID string, opts inapp.ListOptions) ([]inapp.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
}

func (s *Server) listInbox(r *http.Request) Response {
	if s.inbox == nil {
		return s.fail(r, ErrInboxDisabled)
	}
	opts, err := listOptions(r)
	if err != nil {
		return s.fail(r, err)
	}

	recipient := chi.URLParam(r, "recipient")
	items, err := s.inbox.List(r.Context(), recipient, opts)
	if err != nil {
		return s.fail(r, err)
	}
	unread, err := s.inbox.CountUnread(r.Context(), recipient)
	if err != nil {
		return s.fail(r, err)
	}
	if items == nil {
		items = []inapp.Notification{}
	}
	return JSON(http.StatusOK, items, map[string]any{
		"unread": unread,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

func (s *Server) markRead(r *http.Request) Response {
	if s.inbox == nil {
		return s.fail(r, ErrInboxDisabled)
	}
	if err := s.inbox.MarkRead(r.Context(), chi.URLParam(r, "recipient"), chi.URLParam(r, "id")); err != nil {
		return s.fail(r, err)
	}
	return NoContent()
}

func (s *Server) markAllRead(r *http.Request) Response {
	if s.inbox == nil {
		return s.fail(r, ErrInboxDisabled)
	}
	n, err := s.inbox.MarkAllRead(r.Context(), chi.URLParam(r, "recipient"))
	if err != nil {
		return s.fail(r, err)
	}
	return JSON(http.StatusOK, map[string]int{"marked": n}, nil)
}

func listOptions(r *http.Request) (inapp.ListOptions, error) {
	q := r.URL.Query()
	opts := inapp.ListOptions{Limit: defaultPageSize}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidQuery)
		}
		opts.Limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("%w: offset must be a non-negative integer", ErrInvalidQuery)
		}
		opts.Offset = n
	}
	if v := q.Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%w: unread must be a boolean", ErrInvalidQuery)
		}
		opts.OnlyUnread = b
	}
	opts.Types = q["type"]
	return opts, nil
}
