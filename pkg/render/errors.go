package render

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

var (
	// ErrRender marks a rendering failure. It is permanent: the same context
	// fails the same way every time.
	ErrRender = errors.New("render: failed")

	ErrTemplateNotFound = errors.New("render: template not found")
	ErrInvalidTemplate  = errors.New("render: invalid template")
)

// Error describes a failed render.
type Error struct {
	Template string
	Channel  channel.Name
	// Key is the missing context key, when that was the cause.
	Key string
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("render: template %q channel %s", e.Template, e.Channel)
	if e.Key != "" {
		msg += fmt.Sprintf(": missing context key %q", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error { return []error{ErrRender, e.Err} }
