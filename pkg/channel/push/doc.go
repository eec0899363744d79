// Package push delivers mobile push notifications through Amazon SNS
// platform endpoints.
//
// The recipient address is an SNS endpoint ARN. Each message is published
// with MessageStructure "json" carrying an APNs (or APNs sandbox) payload,
// an FCM payload under the GCM key, and the body as the default. A disabled
// endpoint or platform application fails permanently; SNS throttling is
// reported as channel.ErrThrottled.
package push
