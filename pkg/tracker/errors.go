package tracker

import "errors"

var (
	ErrRequestNotFound  = errors.New("tracker: request not found")
	ErrAttemptNotFound  = errors.New("tracker: attempt not found")
	ErrAttemptExists    = errors.New("tracker: attempt already admitted")
	ErrVersionConflict  = errors.New("tracker: attempt changed concurrently")
	ErrNotClaimable     = errors.New("tracker: attempt is not claimable")
	ErrNotDue           = errors.New("tracker: attempt is not due yet")
	ErrRequestFinished  = errors.New("tracker: request already finished")
	ErrRequestCancelled = errors.New("tracker: request cancelled")
	ErrInvalidState     = errors.New("tracker: invalid state transition")
)
