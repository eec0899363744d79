package opensearch

// Config holds OpenSearch connection parameters with environment variable
// mapping for pkg/config.
type Config struct {
	Addresses    []string `env:"OPENSEARCH_ADDRESSES,required"`
	Username     string   `env:"OPENSEARCH_USERNAME"`
	Password     string   `env:"OPENSEARCH_PASSWORD"`
	MaxRetries   int      `env:"OPENSEARCH_MAX_RETRIES" envDefault:"3"`
	DisableRetry bool     `env:"OPENSEARCH_DISABLE_RETRY" envDefault:"false"`
	// IndexPrefix names the daily delivery event indices, e.g.
	// dispatch-events-2026.03.01.
	IndexPrefix string `env:"OPENSEARCH_EVENTS_INDEX_PREFIX" envDefault:"dispatch-events"`
}
