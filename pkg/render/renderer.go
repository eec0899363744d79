package render

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"maps"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// executor is the common surface of text/template and html/template.
type executor interface {
	Execute(w *bytes.Buffer, data any) error
}

type textExec struct{ t *template.Template }

func (e textExec) Execute(w *bytes.Buffer, data any) error { return e.t.Execute(w, data) }

type htmlExec struct{ t *htmltemplate.Template }

func (e htmlExec) Execute(w *bytes.Buffer, data any) error { return e.t.Execute(w, data) }

type compiled struct {
	def    Template
	fields map[string]executor
}

// Renderer turns a named template and context into channel payloads. It is
// safe for concurrent use; Render has no side effects.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]*compiled
	limits    Limits
	funcs     template.FuncMap
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLimits replaces DefaultLimits.
func WithLimits(l Limits) Option {
	return func(r *Renderer) { r.limits = l }
}

// WithFuncs adds template functions available to every template.
func WithFuncs(funcs template.FuncMap) Option {
	return func(r *Renderer) { maps.Copy(r.funcs, funcs) }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{
		templates: make(map[string]*compiled),
		limits:    DefaultLimits(),
		funcs: template.FuncMap{
			"upper":   strings.ToUpper,
			"lower":   strings.ToLower,
			"title":   titleCase,
			"default": defaultValue,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register compiles t and adds it, replacing any template with the same name.
func (r *Renderer) Register(t Template) error {
	c, err := r.compile(t)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.templates[t.Name] = c
	r.mu.Unlock()
	return nil
}

// Replace compiles all templates and swaps them in at once. On error nothing
// changes.
func (r *Renderer) Replace(ts []Template) error {
	next := make(map[string]*compiled, len(ts))
	for _, t := range ts {
		if _, dup := next[t.Name]; dup {
			return fmt.Errorf("%w: duplicate template %q", ErrInvalidTemplate, t.Name)
		}
		c, err := r.compile(t)
		if err != nil {
			return err
		}
		next[t.Name] = c
	}
	r.mu.Lock()
	r.templates = next
	r.mu.Unlock()
	return nil
}

// Has reports whether a template is registered.
func (r *Renderer) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Names lists registered templates, sorted.
func (r *Renderer) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.templates))
}

// Channels lists the channels a template can render for.
func (r *Renderer) Channels(name string) ([]channel.Name, error) {
	r.mu.RLock()
	c, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return c.def.Channels(), nil
}

// Render produces the payload for ch. Failures wrap ErrRender and are
// reported as *Error.
func (r *Renderer) Render(name string, ch channel.Name, data map[string]any) (channel.Payload, error) {
	r.mu.RLock()
	c, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{Template: name, Channel: ch, Err: ErrTemplateNotFound}
	}

	for _, key := range c.def.Required {
		if v, ok := data[key]; !ok || v == nil {
			return nil, &Error{Template: name, Channel: ch, Key: key}
		}
	}

	exec := func(field string) (string, error) {
		e, ok := c.fields[field]
		if !ok {
			return "", nil
		}
		var buf bytes.Buffer
		if err := e.Execute(&buf, data); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	p, err := r.build(c.def, ch, exec)
	if err != nil {
		return nil, &Error{Template: name, Channel: ch, Key: missingKey(err), Err: err}
	}
	return p, nil
}

func (r *Renderer) build(def Template, ch channel.Name, exec func(string) (string, error)) (channel.Payload, error) {
	var err error
	get := func(field string) string {
		if err != nil {
			return ""
		}
		var s string
		s, err = exec(field)
		return s
	}
	lim := r.limits

	switch ch {
	case channel.Email:
		if def.Email == nil {
			break
		}
		p := channel.EmailPayload{
			Subject: truncateRunes(strings.TrimSpace(get("email.subject")), lim.EmailSubjectRunes),
			HTML:    get("email.html"),
			Text:    get("email.text"),
			Tag:     def.Email.Tag,
		}
		if p.Text == "" && err == nil {
			p.Text = PlainText(p.HTML)
		}
		return p, err

	case channel.SMS:
		if def.SMS == nil {
			break
		}
		return channel.SMSPayload{Text: fitSMS(strings.TrimSpace(get("sms.text")), lim.SMSSegments)}, err

	case channel.Push:
		if def.Push == nil {
			break
		}
		p := channel.PushPayload{
			Title: truncateRunes(get("push.title"), lim.PushTitleRunes),
			Body:  truncateBytes(get("push.body"), lim.PushBodyBytes),
		}
		if len(def.Push.Data) > 0 {
			p.Data = make(map[string]string, len(def.Push.Data))
			for k := range def.Push.Data {
				p.Data[k] = get("push.data." + k)
			}
		}
		return p, err

	case channel.Chat:
		if def.Chat == nil {
			break
		}
		text := truncateRunes(get("chat.text"), lim.ChatTextRunes)
		p := channel.ChatPayload{Text: text}
		if title := get("chat.title"); title != "" {
			p.Blocks = append(p.Blocks, channel.Block{Type: "header", Text: title})
		}
		p.Blocks = append(p.Blocks, channel.Block{Type: "section", Text: text})
		if ctxLine := get("chat.context"); ctxLine != "" {
			p.Blocks = append(p.Blocks, channel.Block{Type: "context", Text: ctxLine})
		}
		return p, err

	case channel.Webhook:
		if def.Webhook == nil {
			break
		}
		p := channel.WebhookPayload{Event: def.Webhook.Event, Data: make(map[string]any, len(def.Webhook.Fields))}
		if p.Event == "" {
			p.Event = def.Name
		}
		for k := range def.Webhook.Fields {
			p.Data[k] = get("webhook." + k)
		}
		return p, err

	case channel.InApp:
		if def.InApp == nil {
			break
		}
		return channel.InAppPayload{
			Title:   truncateRunes(get("in_app.title"), lim.InAppTitleRunes),
			Message: truncateRunes(get("in_app.message"), lim.InAppMessageRunes),
			Link:    get("in_app.link"),
		}, err
	}

	return nil, fmt.Errorf("no %s variant", ch)
}

func (r *Renderer) compile(t Template) (*compiled, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	if len(t.Channels()) == 0 {
		return nil, fmt.Errorf("%w: %s has no channel variants", ErrInvalidTemplate, t.Name)
	}

	c := &compiled{def: t, fields: make(map[string]executor)}
	var errs []error
	addText := func(field, src string) {
		if src == "" {
			return
		}
		tpl, err := template.New(field).Funcs(r.funcs).Option("missingkey=error").Parse(src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		c.fields[field] = textExec{tpl}
	}

	if e := t.Email; e != nil {
		addText("email.subject", e.Subject)
		addText("email.text", e.Text)
		if e.HTML != "" {
			tpl, err := htmltemplate.New("email.html").Funcs(htmltemplate.FuncMap(r.funcs)).Option("missingkey=error").Parse(e.HTML)
			if err != nil {
				errs = append(errs, fmt.Errorf("email.html: %w", err))
			} else {
				c.fields["email.html"] = htmlExec{tpl}
			}
		}
	}
	if s := t.SMS; s != nil {
		addText("sms.text", s.Text)
	}
	if p := t.Push; p != nil {
		addText("push.title", p.Title)
		addText("push.body", p.Body)
		for k, v := range p.Data {
			addText("push.data."+k, v)
		}
	}
	if ch := t.Chat; ch != nil {
		addText("chat.title", ch.Title)
		addText("chat.text", ch.Text)
		addText("chat.context", ch.Context)
	}
	if w := t.Webhook; w != nil {
		for k, v := range w.Fields {
			addText("webhook."+k, v)
		}
	}
	if in := t.InApp; in != nil {
		addText("in_app.title", in.Title)
		addText("in_app.message", in.Message)
		addText("in_app.link", in.Link)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTemplate, t.Name, errors.Join(errs...))
	}
	return c, nil
}

// missingKey pulls the key name out of a missingkey=error execution failure.
func missingKey(err error) string {
	const marker = `map has no entry for key "`
	msg := err.Error()
	i := strings.Index(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if j := strings.IndexByte(rest, '"'); j >= 0 {
		return rest[:j]
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func defaultValue(def, v any) any {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && s == "" {
		return def
	}
	return v
}
