// Package api exposes the dispatcher over HTTP.
//
// Routes:
//
//	POST   /v1/notifications                 submit a request
//	GET    /v1/notifications/{id}            status report
//	DELETE /v1/notifications/{id}            cancel
//	GET    /v1/notifications/{id}/events     delivery events (text/event-stream)
//	GET    /v1/inbox/{recipient}             in-app notifications
//	POST   /v1/inbox/{recipient}/read        mark all read
//	POST   /v1/inbox/{recipient}/{id}/read   mark one read
//
// Every JSON response uses the envelope {"data", "meta", "error"}. Errors
// carry a machine readable code and, for validation failures, per-field
// details:
//
//	{"error": {"code": "invalid_request", "message": "...", "details": {"recipients": ["..."]}}}
//
// Correlation ids travel in X-Request-ID and are unrelated to notification
// request ids.
package api
