package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// maxBodyBytes bounds a request body.
const maxBodyBytes = 1 << 20

// handlerFunc returns the response to render for r.
type handlerFunc func(r *http.Request) Response

// handle adapts h to net/http.
func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, h(r))
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, resp Response) {
	if err := resp.Render(w, r); err != nil {
		s.log.LogAttrs(r.Context(), slog.LevelError, "render response failed",
			logger.Error(err), slog.String("path", r.URL.Path), logger.Component("api"))
	}
}

// fail logs err and returns its error envelope. Server errors log at error
// level, client errors at debug.
func (s *Server) fail(r *http.Request, err error) Response {
	resp := errorResponse(err)
	level := slog.LevelDebug
	if jr, ok := resp.(jsonResponse); ok && jr.status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.LogAttrs(r.Context(), level, "request failed",
		logger.Error(err),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		logger.Component("api"),
	)
	return resp
}

// bindJSON decodes a strict JSON body into v.
func bindJSON(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ErrUnsupportedMediaType
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidJSON)
		}
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", ErrInvalidJSON)
	}
	return nil
}
