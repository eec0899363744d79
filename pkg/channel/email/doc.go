// Package email provides email channel adapters.
//
// Three providers are available:
//   - PostmarkAdapter sends through Postmark and implements channel.BatchAdapter,
//     so the dispatcher can hand it up to MaxPostmarkBatch messages per call.
//   - SESAdapter sends through Amazon SES.
//   - DevAdapter writes messages to disk for local development.
//
// Every adapter expects a channel.EmailPayload and validates the recipient
// address. Provider errors are classified: Postmark error codes and SES API
// error codes that describe the message or account become permanent,
// throttling becomes channel.ErrThrottled and network failures are transient.
//
// Usage:
//
//	adapter, err := email.New(ctx, email.Config{
//		Provider:             "postmark",
//		PostmarkServerToken:  os.Getenv("POSTMARK_SERVER_TOKEN"),
//		PostmarkAccountToken: os.Getenv("POSTMARK_ACCOUNT_TOKEN"),
//		SenderEmail:          "noreply@example.com",
//		SupportEmail:         "support@example.com",
//	})
//	if err != nil {
//		return err
//	}
//	_ = registry.Register(channel.Channel{Name: channel.Email, Adapter: adapter, MaxBatchSize: 100})
package email
