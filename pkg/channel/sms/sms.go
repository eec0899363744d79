package sms

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/internal/awserr"
	"github.com/dmitrymomot/dispatchkit/pkg/render"
)

var (
	ErrInvalidConfig = errors.New("sms: invalid config")
	ErrInvalidNumber = errors.New("sms: invalid phone number")
	ErrTooLong       = errors.New("sms: message exceeds segment limit")
)

// Config configures the SNS SMS adapter.
type Config struct {
	AWSRegion string `env:"AWS_REGION" envDefault:"us-east-1"`
	// SenderID is shown as the sender where carriers support it.
	SenderID string `env:"SMS_SENDER_ID"`
	// MaxSegments rejects messages that would be split into more parts.
	MaxSegments int `env:"SMS_MAX_SEGMENTS" envDefault:"3"`
	// MaxPrice caps the USD price of one message.
	MaxPrice string `env:"SMS_MAX_PRICE"`
}

// SNSClient is the part of *sns.Client the adapter uses.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// snsPermanent are SNS error codes that describe the message or number.
var snsPermanent = []string{
	"InvalidParameter",
	"InvalidParameterValue",
	"OptedOut",
	"AuthorizationError",
}

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Adapter sends transactional text messages by publishing to a phone number
// through Amazon SNS.
type Adapter struct {
	client SNSClient
	cfg    Config
}

var _ channel.Adapter = (*Adapter)(nil)

func New(client SNSClient, cfg Config) *Adapter {
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = 3
	}
	return &Adapter{client: client, cfg: cfg}
}

// NewFromConfig loads the default AWS credential chain for cfg.AWSRegion.
func NewFromConfig(ctx context.Context, cfg Config) (*Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("%w: aws config: %w", ErrInvalidConfig, err)
	}
	return New(sns.NewFromConfig(awsCfg), cfg), nil
}

// Send publishes msg.Payload to msg.To, which must be an E.164 number.
func (a *Adapter) Send(ctx context.Context, msg channel.Message) (channel.Receipt, error) {
	p, ok := msg.Payload.(channel.SMSPayload)
	if !ok {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("%w: got %T", channel.ErrPayloadMismatch, msg.Payload))
	}
	if !e164.MatchString(msg.To) {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("%w: %q", ErrInvalidNumber, msg.To))
	}
	if n := render.SMSSegments(p.Text); n > a.cfg.MaxSegments {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("%w: %d segments, limit %d", ErrTooLong, n, a.cfg.MaxSegments))
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": stringAttr("Transactional"),
	}
	if a.cfg.SenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = stringAttr(a.cfg.SenderID)
	}
	if a.cfg.MaxPrice != "" {
		attrs["AWS.SNS.SMS.MaxPrice"] = types.MessageAttributeValue{DataType: aws.String("Number"), StringValue: aws.String(a.cfg.MaxPrice)}
	}

	out, err := a.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.To),
		Message:           aws.String(p.Text),
		MessageAttributes: attrs,
	})
	if err != nil {
		return channel.Receipt{}, awserr.Classify(err, snsPermanent...)
	}
	return channel.Receipt{ProviderRef: aws.ToString(out.MessageId)}, nil
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
