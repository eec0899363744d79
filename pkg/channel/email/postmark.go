package email

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// PostmarkClient is the part of *postmark.Client the adapter uses.
type PostmarkClient interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
	SendEmailBatch(ctx context.Context, emails []postmark.Email) ([]postmark.EmailResponse, error)
}

// MaxPostmarkBatch is the provider's limit for one batch call.
const MaxPostmarkBatch = 500

// PostmarkAdapter delivers email through Postmark's transactional API.
// Opens and HTML link clicks are tracked; Reply-To is the support address.
type PostmarkAdapter struct {
	client PostmarkClient
	cfg    Config
}

var _ channel.BatchAdapter = (*PostmarkAdapter)(nil)

// NewPostmark validates cfg and builds an adapter over the Postmark API.
func NewPostmark(cfg Config) (*PostmarkAdapter, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	return NewPostmarkWithClient(postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken), cfg)
}

// NewPostmarkWithClient builds an adapter over an existing client.
func NewPostmarkWithClient(client PostmarkClient, cfg Config) (*PostmarkAdapter, error) {
	if err := validateSender(cfg); err != nil {
		return nil, err
	}
	return &PostmarkAdapter{client: client, cfg: cfg}, nil
}

func (a *PostmarkAdapter) Send(ctx context.Context, msg channel.Message) (channel.Receipt, error) {
	email, err := a.email(msg)
	if err != nil {
		return channel.Receipt{}, err
	}
	resp, err := a.client.SendEmail(ctx, email)
	if err != nil {
		return channel.Receipt{}, channel.Transient(err)
	}
	if err := postmarkError(resp); err != nil {
		return channel.Receipt{}, err
	}
	return channel.Receipt{ProviderRef: resp.MessageID}, nil
}

// SendBatch sends up to MaxPostmarkBatch messages in one call. Invalid
// messages fail alone without being sent.
func (a *PostmarkAdapter) SendBatch(ctx context.Context, msgs []channel.Message) []channel.Result {
	results := make([]channel.Result, len(msgs))
	emails := make([]postmark.Email, 0, len(msgs))
	index := make([]int, 0, len(msgs))
	for i, msg := range msgs {
		email, err := a.email(msg)
		if err != nil {
			results[i].Err = err
			continue
		}
		emails = append(emails, email)
		index = append(index, i)
	}

	for start := 0; start < len(emails); start += MaxPostmarkBatch {
		end := min(start+MaxPostmarkBatch, len(emails))
		resps, err := a.client.SendEmailBatch(ctx, emails[start:end])
		for j := start; j < end; j++ {
			i := index[j]
			switch {
			case err != nil:
				results[i].Err = channel.Transient(err)
			case j-start >= len(resps):
				results[i].Err = channel.Transient(fmt.Errorf("%w: no response for message", ErrProvider))
			default:
				resp := resps[j-start]
				if perr := postmarkError(resp); perr != nil {
					results[i].Err = perr
					continue
				}
				results[i].Receipt = channel.Receipt{ProviderRef: resp.MessageID}
			}
		}
	}
	return results
}

func (a *PostmarkAdapter) email(msg channel.Message) (postmark.Email, error) {
	p, err := payloadOf(msg)
	if err != nil {
		return postmark.Email{}, err
	}
	return postmark.Email{
		From:       a.cfg.SenderEmail,
		ReplyTo:    a.cfg.SupportEmail,
		To:         msg.To,
		Subject:    p.Subject,
		Tag:        p.Tag,
		HTMLBody:   p.HTML,
		TextBody:   p.Text,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	}, nil
}

// postmarkError classifies an API error code. Codes below 300 are service
// conditions (maintenance) and retried; 429 is rate limiting; everything
// else describes the message, sender or account and will not change on retry.
func postmarkError(resp postmark.EmailResponse) error {
	if resp.ErrorCode == 0 {
		return nil
	}
	err := fmt.Errorf("%w: postmark error %d: %s", ErrProvider, resp.ErrorCode, resp.Message)
	switch {
	case resp.ErrorCode == 429:
		return channel.Throttled(err, 0)
	case resp.ErrorCode < 300 && resp.ErrorCode != 10:
		return channel.Transient(err)
	}
	return channel.Permanent(err)
}
