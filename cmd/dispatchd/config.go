package main

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/config"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/preference"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
	"github.com/dmitrymomot/dispatchkit/pkg/retry"
)

// appConfig holds the settings owned by the binary itself. Each package
// loads its own Config separately.
type appConfig struct {
	Env string `env:"APP_ENV" envDefault:"development"`

	// Storage is "postgres" or "memory".
	Storage string `env:"DISPATCH_STORAGE" envDefault:"postgres"`
	// RateLimitStore is "redis" or "memory".
	RateLimitStore string        `env:"DISPATCH_RATELIMIT_STORE" envDefault:"memory"`
	Lease          time.Duration `env:"DISPATCH_LEASE" envDefault:"5m"`
	MaxThrottles   int           `env:"DISPATCH_MAX_THROTTLES" envDefault:"100"`

	ChannelsFile    string `env:"DISPATCH_CHANNELS_FILE"`
	TemplatesFile   string `env:"DISPATCH_TEMPLATES_FILE"`
	WatchTemplates  bool   `env:"DISPATCH_WATCH_TEMPLATES" envDefault:"true"`
	PreferencesFile string `env:"DISPATCH_PREFERENCES_FILE"`

	RecoverSchedule string `env:"DISPATCH_RECOVER_SCHEDULE" envDefault:"@every 1m"`
	PurgeSchedule   string `env:"INAPP_PURGE_SCHEDULE" envDefault:"@hourly"`

	// AuditBackend is "opensearch", "mongo" or empty to keep events in the
	// store only.
	AuditBackend string `env:"AUDIT_BACKEND"`

	// SubmitBurst of zero disables submission rate limiting.
	SubmitBurst    int           `env:"API_SUBMIT_BURST" envDefault:"0"`
	SubmitRefill   int           `env:"API_SUBMIT_REFILL" envDefault:"10"`
	SubmitInterval time.Duration `env:"API_SUBMIT_INTERVAL" envDefault:"1s"`
	APIKeyHeader   string        `env:"API_KEY_HEADER" envDefault:"X-API-Key"`
}

func (c appConfig) validate() error {
	switch c.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("DISPATCH_STORAGE: unknown storage %q", c.Storage)
	}
	switch c.RateLimitStore {
	case "redis", "memory":
	default:
		return fmt.Errorf("DISPATCH_RATELIMIT_STORE: unknown store %q", c.RateLimitStore)
	}
	switch c.AuditBackend {
	case "", "opensearch", "mongo":
	default:
		return fmt.Errorf("AUDIT_BACKEND: unknown backend %q", c.AuditBackend)
	}
	if c.Storage == "memory" && c.PreferencesFile == "" {
		return fmt.Errorf("DISPATCH_PREFERENCES_FILE is required with in-memory storage")
	}
	return nil
}

// checkLease rejects a claim lease that a send could outlive. Claims extend
// their lease to cover the channel timeout, so this only catches settings
// that contradict each other.
func checkLease(lease, sendTimeout time.Duration, defs []channelDef) error {
	longest, name := sendTimeout, "DISPATCH_SEND_TIMEOUT"
	for _, def := range defs {
		if def.Timeout > longest {
			longest, name = def.Timeout, "channel "+string(def.Name)+" timeout"
		}
	}
	if lease <= longest {
		return fmt.Errorf("DISPATCH_LEASE %s must exceed %s (%s)", lease, name, longest)
	}
	return nil
}

// definitions is the channel and notification type file.
type definitions struct {
	Channels []channelDef               `yaml:"channels"`
	Types    []dispatch.NotificationType `yaml:"types"`
}

type channelDef struct {
	Name channel.Name `yaml:"name"`
	// Account separates rate limits of several accounts behind one channel.
	Account   string              `yaml:"account,omitempty"`
	BatchSize int                 `yaml:"batch_size,omitempty"`
	Timeout   time.Duration       `yaml:"timeout,omitempty"`
	RateLimit *ratelimiter.Config `yaml:"rate_limit,omitempty"`
	Retry     *retry.Policy       `yaml:"retry,omitempty"`
}

// defaultDefinitions serves email and the in-app inbox with the built-in
// account lifecycle templates.
func defaultDefinitions() definitions {
	return definitions{
		Channels: []channelDef{
			{Name: channel.Email, BatchSize: 50},
			{Name: channel.InApp, BatchSize: 100},
		},
		Types: []dispatch.NotificationType{
			{Name: "welcome", Channels: []channel.Name{channel.Email, channel.InApp}},
			{Name: "verify_email", Channels: []channel.Name{channel.Email}, Priority: 10},
			{Name: "password_reset", Channels: []channel.Name{channel.Email}, Priority: 10},
			{Name: "2fa_enabled", Channels: []channel.Name{channel.Email, channel.InApp}},
		},
	}
}

func loadDefinitions(path string) (definitions, error) {
	if path == "" {
		return defaultDefinitions(), nil
	}
	var defs definitions
	if err := config.LoadFile(path, &defs); err != nil {
		return definitions{}, err
	}
	if len(defs.Channels) == 0 {
		return definitions{}, fmt.Errorf("%s: no channels defined", path)
	}
	return defs, nil
}

// profileDef is one recipient in the preferences file used with in-memory
// storage.
type profileDef struct {
	ID        string                           `yaml:"id"`
	OptOut    bool                             `yaml:"opt_out,omitempty"`
	Addresses map[channel.Name]string          `yaml:"addresses"`
	Defaults  map[channel.Name]bool            `yaml:"defaults"`
	Types     map[string]map[channel.Name]bool `yaml:"types,omitempty"`
}

func loadPreferences(path string) (*preference.MemorySource, error) {
	var file struct {
		Recipients []profileDef `yaml:"recipients"`
	}
	if err := config.LoadFile(path, &file); err != nil {
		return nil, err
	}
	src := preference.NewMemorySource()
	for _, p := range file.Recipients {
		src.Put(preference.Profile{
			RecipientID: p.ID,
			OptOut:      p.OptOut,
			Addresses:   p.Addresses,
			Defaults:    p.Defaults,
			Types:       p.Types,
		})
	}
	return src, nil
}
