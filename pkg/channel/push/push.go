package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/internal/awserr"
)

var (
	ErrInvalidConfig   = errors.New("push: invalid config")
	ErrInvalidEndpoint = errors.New("push: invalid endpoint arn")
)

// Config configures the SNS mobile push adapter.
type Config struct {
	AWSRegion string `env:"AWS_REGION" envDefault:"us-east-1"`
	// Sandbox targets APNS_SANDBOX instead of APNS.
	Sandbox bool `env:"PUSH_APNS_SANDBOX" envDefault:"false"`
}

// SNSClient is the part of *sns.Client the adapter uses.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var snsPermanent = []string{
	"EndpointDisabled",
	"InvalidParameter",
	"InvalidParameterValue",
	"PlatformApplicationDisabled",
	"NotFound",
	"AuthorizationError",
}

// Adapter publishes to SNS platform endpoints. The recipient address is the
// endpoint ARN registered for the device.
type Adapter struct {
	client SNSClient
	cfg    Config
}

var _ channel.Adapter = (*Adapter)(nil)

func New(client SNSClient, cfg Config) *Adapter {
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

func (a *Adapter) Send(ctx context.Context, msg channel.Message) (channel.Receipt, error) {
	p, ok := msg.Payload.(channel.PushPayload)
	if !ok {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("%w: got %T", channel.ErrPayloadMismatch, msg.Payload))
	}
	if !strings.HasPrefix(msg.To, "arn:") || !strings.Contains(msg.To, ":endpoint/") {
		return channel.Receipt{}, channel.Permanent(fmt.Errorf("%w: %q", ErrInvalidEndpoint, msg.To))
	}

	body, err := a.Envelope(p)
	if err != nil {
		return channel.Receipt{}, channel.Permanent(err)
	}
	out, err := a.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(msg.To),
		Message:          aws.String(body),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		return channel.Receipt{}, awserr.Classify(err, snsPermanent...)
	}
	return channel.Receipt{ProviderRef: aws.ToString(out.MessageId)}, nil
}

type apsAlert struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

type apsPayload struct {
	Aps struct {
		Alert apsAlert `json:"alert"`
		Sound string   `json:"sound"`
	} `json:"aps"`
	Data map[string]string `json:"data,omitempty"`
}

type fcmPayload struct {
	Notification struct {
		Title string `json:"title,omitempty"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data,omitempty"`
}

// Envelope builds the per-platform SNS message. SNS expects each platform
// value to be a JSON document encoded as a string.
func (a *Adapter) Envelope(p channel.PushPayload) (string, error) {
	var aps apsPayload
	aps.Aps.Alert = apsAlert{Title: p.Title, Body: p.Body}
	aps.Aps.Sound = "default"
	aps.Data = p.Data

	var fcm fcmPayload
	fcm.Notification.Title = p.Title
	fcm.Notification.Body = p.Body
	fcm.Data = p.Data

	apsJSON, err := json.Marshal(aps)
	if err != nil {
		return "", err
	}
	fcmJSON, err := json.Marshal(fcm)
	if err != nil {
		return "", err
	}

	apsKey := "APNS"
	if a.cfg.Sandbox {
		apsKey = "APNS_SANDBOX"
	}
	env, err := json.Marshal(map[string]string{
		"default": p.Body,
		apsKey:    string(apsJSON),
		"GCM":     string(fcmJSON),
	})
	if err != nil {
		return "", err
	}
	return string(env), nil
}
