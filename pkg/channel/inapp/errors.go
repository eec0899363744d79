package inapp

import "errors"

var (
	ErrNotFound     = errors.New("inapp: notification not found")
	ErrDuplicate    = errors.New("inapp: notification already exists")
	ErrInvalidEntry = errors.New("inapp: invalid notification")
)
