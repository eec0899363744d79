package dispatch

import "time"

// Config tunes the dispatcher's concurrency and timing.
type Config struct {
	// Workers is the number of goroutines taking due attempts off the ready
	// queue and feeding the batch coordinator.
	Workers int `env:"DISPATCH_WORKERS" envDefault:"8"`
	// Expanders is the number of goroutines turning due requests into
	// attempts.
	Expanders int `env:"DISPATCH_EXPANDERS" envDefault:"2"`
	// BatchWindow bounds how long a partial batch waits.
	BatchWindow time.Duration `env:"DISPATCH_BATCH_WINDOW" envDefault:"100ms"`
	// SendTimeout applies to channels without their own timeout.
	SendTimeout time.Duration `env:"DISPATCH_SEND_TIMEOUT" envDefault:"30s"`
	// ExpandRetryDelay is the pause before retrying an expansion that hit an
	// unavailable preference source or store.
	ExpandRetryDelay time.Duration `env:"DISPATCH_EXPAND_RETRY_DELAY" envDefault:"5s"`
	// ShutdownTimeout bounds the wait for in-flight sends on stop.
	ShutdownTimeout time.Duration `env:"DISPATCH_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig matches the env defaults.
func DefaultConfig() Config {
	return Config{
		Workers:          8,
		Expanders:        2,
		BatchWindow:      100 * time.Millisecond,
		SendTimeout:      30 * time.Second,
		ExpandRetryDelay: 5 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Expanders <= 0 {
		c.Expanders = d.Expanders
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = d.BatchWindow
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.ExpandRetryDelay <= 0 {
		c.ExpandRetryDelay = d.ExpandRetryDelay
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}
