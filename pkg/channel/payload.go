package channel

// Payload is rendered content in the shape one channel expects.
type Payload interface {
	Channel() Name
}

// EmailPayload is a rendered email.
type EmailPayload struct {
	Subject string
	HTML    string
	Text    string
	// Tag groups messages in provider analytics.
	Tag string
}

func (EmailPayload) Channel() Name { return Email }

// SMSPayload is a rendered text message.
type SMSPayload struct {
	Text string
}

func (SMSPayload) Channel() Name { return SMS }

// PushPayload is a rendered mobile push notification.
type PushPayload struct {
	Title string
	Body  string
	Data  map[string]string
}

func (PushPayload) Channel() Name { return Push }

// Block is one element of a structured chat message.
type Block struct {
	Type string `json:"type"` // header, section or context
	Text string `json:"text"`
}

// ChatPayload is a rendered chat message.
type ChatPayload struct {
	Text   string
	Blocks []Block
}

func (ChatPayload) Channel() Name { return Chat }

// WebhookPayload is a rendered structured event for an HTTP endpoint.
type WebhookPayload struct {
	Event string
	Data  map[string]any
}

func (WebhookPayload) Channel() Name { return Webhook }

// InAppPayload is a rendered inbox entry.
type InAppPayload struct {
	Title   string
	Message string
	Link    string
	Data    map[string]any
}

func (InAppPayload) Channel() Name { return InApp }
