package email

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/internal/awserr"
)

// SESClient is the part of *ses.Client the adapter uses.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// sesPermanent are SES error codes that describe the message or account.
var sesPermanent = []string{
	"MessageRejected",
	"MailFromDomainNotVerifiedException",
	"ConfigurationSetDoesNotExistException",
	"ConfigurationSetSendingPausedException",
	"AccountSendingPausedException",
}

// SESAdapter delivers email through Amazon SES.
type SESAdapter struct {
	client SESClient
	cfg    Config
}

var _ channel.Adapter = (*SESAdapter)(nil)

func NewSES(client SESClient, cfg Config) (*SESAdapter, error) {
	if err := validateSender(cfg); err != nil {
		return nil, err
	}
	return &SESAdapter{client: client, cfg: cfg}, nil
}

func (a *SESAdapter) Send(ctx context.Context, msg channel.Message) (channel.Receipt, error) {
	p, err := payloadOf(msg)
	if err != nil {
		return channel.Receipt{}, err
	}

	body := &types.Body{Html: content(p.HTML)}
	if p.Text != "" {
		body.Text = content(p.Text)
	}
	in := &ses.SendEmailInput{
		Source:      aws.String(a.cfg.SenderEmail),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: content(p.Subject),
			Body:    body,
		},
	}
	if a.cfg.SupportEmail != "" {
		in.ReplyToAddresses = []string{a.cfg.SupportEmail}
	}
	if a.cfg.SESConfigurationSet != "" {
		in.ConfigurationSetName = aws.String(a.cfg.SESConfigurationSet)
	}

	out, err := a.client.SendEmail(ctx, in)
	if err != nil {
		return channel.Receipt{}, awserr.Classify(err, sesPermanent...)
	}
	return channel.Receipt{ProviderRef: aws.ToString(out.MessageId)}, nil
}

func content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}
