package email

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// New builds the adapter selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (channel.Adapter, error) {
	switch cfg.Provider {
	case "postmark":
		return NewPostmark(cfg)
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("%w: aws config: %w", ErrInvalidConfig, err)
		}
		return NewSES(ses.NewFromConfig(awsCfg), cfg)
	case "dev", "":
		return NewDev(cfg.DevDir), nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
}
