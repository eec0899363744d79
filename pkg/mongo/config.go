package mongo

import "time"

// Config represents the connection and audit collection settings.
type Config struct {
	ConnectionURL string `env:"MONGODB_URL,required"`
	// Database and Collection locate the audit events.
	Database   string `env:"MONGODB_DATABASE" envDefault:"dispatch"`
	Collection string `env:"MONGODB_EVENTS_COLLECTION" envDefault:"delivery_events"`

	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"20"`
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s"`
	RetryWrites     bool          `env:"MONGODB_RETRY_WRITES" envDefault:"true"`
	// RetryAttempts bounds connection attempts at startup, RetryInterval
	// is the pause between them.
	RetryAttempts int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"5s"`
}
