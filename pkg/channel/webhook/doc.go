// Package webhook delivers notifications over HTTP: Adapter posts a signed
// JSON event to the recipient's endpoint and ChatAdapter posts Block Kit
// messages to Slack-compatible incoming webhooks.
//
// # Signing
//
// With WithSignature, every delivery carries X-Webhook-Signature,
// X-Webhook-Timestamp and X-Webhook-ID headers. The signature is
// hex(HMAC-SHA256(secret, timestamp + "." + body)) and the id is the
// message id, stable across retries of the same attempt. Receivers check a
// delivery with ExtractSignatureHeaders and Verify.
//
// # Failure classes
//
// Responses map onto channel error classes:
//
//   - 2xx is success
//   - 429 is throttled, honouring Retry-After
//   - 408, 425 and 5xx are transient, as are network errors
//   - any other status is permanent
//
// Each endpoint host has its own CircuitBreaker. While it is open, sends
// fail fast as transient and the error names the remaining recovery time.
//
// # Usage
//
//	hooks := webhook.New(webhook.WithSignature(secret))
//	chat := webhook.NewChat(webhook.WithCircuitBreaker(3, 1, time.Minute))
//
//	registry.Register(channel.Channel{Name: channel.Webhook, Adapter: hooks})
//	registry.Register(channel.Channel{Name: channel.Chat, Adapter: chat})
package webhook
