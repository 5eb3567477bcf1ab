package backend

import (
	"context"
	"fmt"
	"os"
)

const (
	ProviderGemini = "gemini"
	ProviderEcho   = "echo"
)

// Config selects and configures the backend client.
type Config struct {
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// DefaultConfig returns the Gemini provider configuration.
func DefaultConfig() Config {
	return Config{Provider: ProviderGemini}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
}

// ResolveAPIKey returns the configured key, falling back to GEMINI_API_KEY
// and then GOOGLE_API_KEY.
func (c *Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("GOOGLE_API_KEY")
}

// New creates a Client from configuration.
func New(ctx context.Context, cfg *Config) (Client, error) {
	switch cfg.Provider {
	case "", ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderEcho:
		return &Echo{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
