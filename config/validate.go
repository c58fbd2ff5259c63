package config

import (
	"fmt"
	"strings"
	"time"
)

// MinTickInterval bounds how fast the clock ticker may advance.
var MinTickInterval = 10 * time.Millisecond

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if c.TickInterval < MinTickInterval {
		return fmt.Errorf("config: TickInterval must be at least %s", MinTickInterval)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate_limit values must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("config: rate_limit.Burst must be positive when a rate is set")
	}
	switch c.Indexer.Driver {
	case IndexerDriverSQLite, IndexerDriverPostgres:
	default:
		return fmt.Errorf("config: unsupported indexer driver %q", c.Indexer.Driver)
	}
	if strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("config: indexer.DSN required")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("config: log rotation values must not be negative")
	}
	return nil
}
