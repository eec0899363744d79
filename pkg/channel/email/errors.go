package email

import "errors"

var (
	ErrInvalidConfig  = errors.New("email: invalid config")
	ErrInvalidAddress = errors.New("email: invalid recipient address")
	ErrProvider       = errors.New("email: provider rejected message")
)
