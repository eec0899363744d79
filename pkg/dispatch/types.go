package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

// Request is a notification to deliver.
type Request struct {
	// IdempotencyKey deduplicates resubmissions while the first request is
	// still active.
	IdempotencyKey string
	Type           string
	Recipients     []string
	// Template defaults to the type's template.
	Template string
	Context  map[string]any
	// Channels restricts delivery. Empty means every channel the template
	// supports.
	Channels []channel.Name
	// ScheduledFor holds the request until then. Zero means now.
	ScheduledFor time.Time
	// Priority orders attempts due at the same time; higher goes first.
	Priority int
}

// Handle identifies a submitted request.
type Handle struct {
	RequestID string
	// Duplicate is set when an active request with the same idempotency key
	// was returned instead of creating a new one.
	Duplicate    bool
	State        tracker.RequestState
	ScheduledFor time.Time
}

// NotificationType is a kind of notification the dispatcher accepts.
type NotificationType struct {
	Name string `yaml:"name"`
	// Template is used when a request names none. Defaults to Name.
	Template string `yaml:"template,omitempty"`
	// Channels is the default channel set for requests that name none.
	Channels []channel.Name `yaml:"channels,omitempty"`
	// Priority applies when a request leaves it at zero.
	Priority int `yaml:"priority,omitempty"`
	// Schema is an optional JSON schema the request context must satisfy.
	Schema string `yaml:"schema,omitempty"`

	schema *gojsonschema.Schema
}

func (t NotificationType) template() string {
	if t.Template != "" {
		return t.Template
	}
	return t.Name
}

// Types is the set of accepted notification types.
type Types struct {
	mu    sync.RWMutex
	types map[string]NotificationType
}

func NewTypes() *Types {
	return &Types{types: make(map[string]NotificationType)}
}

// Register compiles the type's schema and adds it, replacing any type with
// the same name.
func (ts *Types) Register(t NotificationType) error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidType)
	}
	if t.Schema != "" {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(t.Schema))
		if err != nil {
			return fmt.Errorf("%w: %s: schema: %w", ErrInvalidType, t.Name, err)
		}
		t.schema = s
	}
	ts.mu.Lock()
	ts.types[t.Name] = t
	ts.mu.Unlock()
	return nil
}

// Get returns a registered type.
func (ts *Types) Get(name string) (NotificationType, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.types[name]
	return t, ok
}

// validateContext checks data against the type's schema.
func (t NotificationType) validateContext(data map[string]any, errs *InvalidRequestError) {
	if t.schema == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	res, err := t.schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		errs.add("context", err.Error())
		return
	}
	for _, re := range res.Errors() {
		field := "context"
		if f := re.Field(); f != "" && f != gojsonschema.STRING_CONTEXT_ROOT {
			field += "." + f
		}
		errs.add(field, re.Description())
	}
}
