package api

import (
	"encoding/json"
	"net/http"
)

// Body is the envelope of every JSON response.
type Body struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request. Details maps a field to its
// problems.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// Response renders itself to a ResponseWriter.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

type jsonResponse struct {
	status int
	body   Body
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON wraps data in the envelope.
func JSON(status int, data any, meta map[string]any) Response {
	return jsonResponse{status: status, body: Body{Data: data, Meta: meta}}
}

// Error renders an error envelope.
func Error(status int, code, message string, details map[string][]string) Response {
	return jsonResponse{status: status, body: Body{Error: &ErrorDetail{Code: code, Message: message, Details: details}}}
}

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// NoContent renders 204 with no body.
func NoContent() Response {
	return emptyResponse{status: http.StatusNoContent}
}
