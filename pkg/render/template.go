package render

import "github.com/dmitrymomot/dispatchkit/pkg/channel"

// Template is a named notification with one variant per channel. Every text
// field is a text/template; EmailTemplate.HTML is an html/template.
type Template struct {
	Name string `yaml:"name"`
	// Required lists context keys that must be present and non-nil.
	Required []string `yaml:"required"`

	Email   *EmailTemplate   `yaml:"email,omitempty"`
	SMS     *SMSTemplate     `yaml:"sms,omitempty"`
	Push    *PushTemplate    `yaml:"push,omitempty"`
	Chat    *ChatTemplate    `yaml:"chat,omitempty"`
	Webhook *WebhookTemplate `yaml:"webhook,omitempty"`
	InApp   *InAppTemplate   `yaml:"in_app,omitempty"`
}

type EmailTemplate struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
	// Text is optional; when empty it is derived from the rendered HTML.
	Text string `yaml:"text,omitempty"`
	Tag  string `yaml:"tag,omitempty"`
}

type SMSTemplate struct {
	Text string `yaml:"text"`
}

type PushTemplate struct {
	Title string            `yaml:"title"`
	Body  string            `yaml:"body"`
	Data  map[string]string `yaml:"data,omitempty"`
}

type ChatTemplate struct {
	Title   string `yaml:"title,omitempty"`
	Text    string `yaml:"text"`
	Context string `yaml:"context,omitempty"`
}

type WebhookTemplate struct {
	// Event defaults to the notification type.
	Event  string            `yaml:"event,omitempty"`
	Fields map[string]string `yaml:"fields"`
}

type InAppTemplate struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
	Link    string `yaml:"link,omitempty"`
}

// Channels lists the channels this template has a variant for.
func (t Template) Channels() []channel.Name {
	var out []channel.Name
	if t.Email != nil {
		out = append(out, channel.Email)
	}
	if t.SMS != nil {
		out = append(out, channel.SMS)
	}
	if t.Push != nil {
		out = append(out, channel.Push)
	}
	if t.Chat != nil {
		out = append(out, channel.Chat)
	}
	if t.Webhook != nil {
		out = append(out, channel.Webhook)
	}
	if t.InApp != nil {
		out = append(out, channel.InApp)
	}
	return out
}
