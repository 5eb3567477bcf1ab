package extract

import "time"

const (
	defaultTimeoutSeconds = 60
	defaultMaxBytes       = 2 << 20
	defaultUserAgent      = "Mozilla/5.0 (compatible; exchange/1.0)"
)

// Config holds extractor parameters.
type Config struct {
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	MaxBytes       int64  `json:"max_bytes,omitempty" yaml:"max_bytes,omitempty"`
	UserAgent      string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
}

// DefaultConfig returns a 60 second fetch timeout and a 2 MiB body cap.
func DefaultConfig() Config {
	return Config{
		TimeoutSeconds: defaultTimeoutSeconds,
		MaxBytes:       defaultMaxBytes,
		UserAgent:      defaultUserAgent,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.TimeoutSeconds > 0 {
		c.TimeoutSeconds = source.TimeoutSeconds
	}
	if source.MaxBytes > 0 {
		c.MaxBytes = source.MaxBytes
	}
	if source.UserAgent != "" {
		c.UserAgent = source.UserAgent
	}
}

// Timeout returns the fetch timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
