package preference

import "errors"

var (
	ErrRecipientNotFound = errors.New("preference: recipient not found")
	ErrSourceUnavailable = errors.New("preference: source unavailable")
)
