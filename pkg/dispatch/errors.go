package dispatch

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidRequest is matched by every *InvalidRequestError.
	ErrInvalidRequest = errors.New("dispatch: invalid request")

	ErrUnknownType    = errors.New("dispatch: unknown notification type")
	ErrInvalidType    = errors.New("dispatch: invalid notification type")
	ErrAlreadyRunning = errors.New("dispatch: already running")

	errMissingResult = errors.New("dispatch: adapter returned no result for message")
)

// FieldError is one problem with a submitted request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidRequestError is returned by Submit when validation fails. Nothing is
// persisted or scheduled.
type InvalidRequestError struct {
	Fields []FieldError
}

func (e *InvalidRequestError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrInvalidRequest.Error() + ": " + strings.Join(parts, "; ")
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

func (e *InvalidRequestError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *InvalidRequestError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
