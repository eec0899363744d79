// Package sms sends text messages through Amazon SNS.
//
// The adapter publishes directly to E.164 phone numbers with the
// Transactional SMS type. Messages longer than Config.MaxSegments segments
// (GSM-7 or UCS-2, as counted by render.SMSSegments) are rejected as
// permanent failures instead of being billed as many parts.
//
//	adapter, err := sms.NewFromConfig(ctx, sms.Config{AWSRegion: "eu-west-1", SenderID: "Acme"})
//	if err != nil {
//		return err
//	}
//	_ = registry.Register(channel.Channel{Name: channel.SMS, Adapter: adapter})
package sms
