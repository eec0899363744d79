package webhook

import "errors"

var (
	ErrInvalidConfig    = errors.New("webhook: invalid configuration")
	ErrInvalidURL       = errors.New("webhook: invalid endpoint url")
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrCircuitOpen      = errors.New("webhook: circuit breaker is open")
	ErrStatus           = errors.New("webhook: unexpected response status")
)
