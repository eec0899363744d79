package audit

import "errors"

var (
	ErrNilWriter = errors.New("audit: batch writer cannot be nil")
	ErrClosed    = errors.New("audit: writer is closed")
)
