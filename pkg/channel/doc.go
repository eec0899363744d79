// Package channel defines the transport side of dispatch: the Channel
// descriptor, the Adapter contract vendor bindings implement, the payload
// shapes each channel renders into and the error classes adapters report.
//
// An adapter only needs Send:
//
//	type Adapter interface {
//	    Send(ctx context.Context, msg Message) (Receipt, error)
//	}
//
// Adapters whose provider takes several messages per request also implement
// BatchAdapter and return one Result per message.
//
// Failures are classified as transient (retry with backoff), permanent (dead
// immediately) or throttled (provider backpressure, rescheduled without using
// the retry budget). Adapters mark errors with Permanent, Transient or
// Throttled; Classify reads those marks and treats unmarked errors as
// transient. A Channel may install its own Classifier.
//
// Implementations live in the subpackages email, sms, push, webhook and
// inapp.
package channel
