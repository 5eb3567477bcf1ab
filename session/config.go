package session

import (
	"fmt"

	"github.com/tailored-agentic-units/exchange/bot"
)

// Config holds session initialization parameters. Bound bots are resolved
// separately; Config carries only backend selection.
type Config struct {
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
}

const memoryBackend = "memory"

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{Backend: memoryBackend}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
}

// New creates a Session bound to b from configuration. Only the in-memory
// backend exists; sessions do not survive a restart.
func New(cfg *Config, b bot.Bot) (Session, error) {
	switch cfg.Backend {
	case "", memoryBackend:
		return NewMemorySession(b), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
