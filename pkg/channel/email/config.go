package email

// Config selects and configures the email provider.
// Provider is one of "postmark", "ses" or "dev"; the dev provider writes
// messages to DevDir instead of sending them.
type Config struct {
	Provider             string `env:"EMAIL_PROVIDER" envDefault:"dev"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL"`
	SupportEmail         string `env:"SUPPORT_EMAIL"`
	AWSRegion            string `env:"AWS_REGION" envDefault:"us-east-1"`
	SESConfigurationSet  string `env:"SES_CONFIGURATION_SET"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}
