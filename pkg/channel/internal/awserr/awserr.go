// Package awserr maps AWS API errors to channel error classes.
package awserr

import (
	"errors"
	"slices"

	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

var throttling = []string{
	"Throttling",
	"ThrottlingException",
	"ThrottledException",
	"Throttled",
	"TooManyRequestsException",
	"RequestLimitExceeded",
	"KMSThrottlingException",
}

// Classify wraps err with the class its API error code implies. Codes listed
// in permanent are never retried; other client faults are treated as
// permanent too, server faults and non-API errors as transient.
func Classify(err error, permanent ...string) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return channel.Transient(err)
	}
	code := ae.ErrorCode()
	switch {
	case slices.Contains(throttling, code):
		return channel.Throttled(err, 0)
	case slices.Contains(permanent, code):
		return channel.Permanent(err)
	case ae.ErrorFault() == smithy.FaultClient:
		return channel.Permanent(err)
	}
	return channel.Transient(err)
}
