package exchange

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/exchange/backend"
	"github.com/tailored-agentic-units/exchange/bot"
	"github.com/tailored-agentic-units/exchange/core/config"
	"github.com/tailored-agentic-units/exchange/extract"
	"github.com/tailored-agentic-units/exchange/session"
)

const defaultObserver = "slog"

// Config holds initialization parameters for every exchange subsystem.
// Each section delegates to that subsystem's config-driven constructor.
type Config struct {
	Backend  backend.Config        `json:"backend" yaml:"backend"`
	Extract  extract.Config        `json:"extract" yaml:"extract"`
	Session  session.Config        `json:"session" yaml:"session"`
	Model    config.ModelConfig    `json:"model" yaml:"model"`
	Bots     map[string]bot.Config `json:"bots,omitempty" yaml:"bots,omitempty"`
	Bot      string                `json:"bot,omitempty" yaml:"bot,omitempty"`
	Observer string                `json:"observer,omitempty" yaml:"observer,omitempty"` // comma-separated observer names
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Backend:  backend.DefaultConfig(),
		Extract:  extract.DefaultConfig(),
		Session:  session.DefaultConfig(),
		Model:    config.DefaultModelConfig(),
		Observer: defaultObserver,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Backend.Merge(&source.Backend)
	c.Extract.Merge(&source.Extract)
	c.Session.Merge(&source.Session)
	c.Model.Merge(&source.Model)

	if len(source.Bots) > 0 {
		c.Bots = source.Bots
	}
	if source.Bot != "" {
		c.Bot = source.Bot
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a config file, merges it with defaults, and returns the
// resulting Config. Files ending in .yaml or .yml are parsed as YAML,
// everything else as JSON.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
