package retry

import "errors"

var (
	ErrInvalidPolicy = errors.New("retry: invalid policy")
	ErrClosed        = errors.New("retry: scheduler closed")
)
