package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/dispatchkit/pkg/channel/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

var (
	ErrUnsupportedMediaType = errors.New("api: expected application/json")
	ErrInvalidJSON          = errors.New("api: invalid JSON body")
	ErrInvalidQuery         = errors.New("api: invalid query parameter")
	ErrInboxDisabled        = errors.New("api: in-app inbox is not configured")
)

// errorResponse maps domain errors onto the HTTP error envelope.
func errorResponse(err error) Response {
	var invalid *dispatch.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		details := make(map[string][]string, len(invalid.Fields))
		for _, f := range invalid.Fields {
			details[f.Field] = append(details[f.Field], f.Message)
		}
		code := "invalid_request"
		if errors.Is(err, dispatch.ErrUnknownType) {
			code = "unknown_type"
		}
		return Error(http.StatusBadRequest, code, "request failed validation", details)
	case errors.Is(err, ErrUnsupportedMediaType):
		return Error(http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error(), nil)
	case errors.Is(err, ErrInvalidJSON):
		return Error(http.StatusBadRequest, "invalid_json", err.Error(), nil)
	case errors.Is(err, ErrInvalidQuery):
		return Error(http.StatusBadRequest, "invalid_query", err.Error(), nil)
	case errors.Is(err, tracker.ErrRequestNotFound):
		return Error(http.StatusNotFound, "not_found", "notification request not found", nil)
	case errors.Is(err, tracker.ErrRequestFinished):
		return Error(http.StatusConflict, "already_finished", "notification request already finished", nil)
	case errors.Is(err, inapp.ErrNotFound):
		return Error(http.StatusNotFound, "not_found", "notification not found", nil)
	case errors.Is(err, ErrInboxDisabled):
		return Error(http.StatusNotFound, "inbox_disabled", err.Error(), nil)
	default:
		return Error(http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
