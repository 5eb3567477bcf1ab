// Package bot defines the persona bound to a session: the fixed context
// prompts prepended to every outgoing history and the model parameters used
// for the backend call.
package bot

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/exchange/core/config"
	"github.com/tailored-agentic-units/exchange/core/protocol"
)

// Config describes a bot. Context prompts are taken from Context first, then
// from every file under PromptsPath in key order.
type Config struct {
	Name        string             `json:"name,omitempty" yaml:"name,omitempty"`
	Context     []string           `json:"context,omitempty" yaml:"context,omitempty"`
	PromptsPath string             `json:"prompts_path,omitempty" yaml:"prompts_path,omitempty"`
	Model       config.ModelConfig `json:"model" yaml:"model"`
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if len(source.Context) > 0 {
		c.Context = source.Context
	}
	if source.PromptsPath != "" {
		c.PromptsPath = source.PromptsPath
	}
	c.Model.Merge(&source.Model)
}

// Bot is a resolved bot configuration.
type Bot struct {
	Name    string
	Context []protocol.Message
	Model   config.ModelConfig
}

// ContextPrompts returns a copy of the bot's context prompts.
func (b Bot) ContextPrompts() []protocol.Message {
	return protocol.CloneAll(b.Context)
}

// New resolves cfg into a Bot, loading prompt files when PromptsPath is set.
func New(ctx context.Context, cfg *Config) (Bot, error) {
	b := Bot{
		Name:  cfg.Name,
		Model: cfg.Model,
	}

	for _, prompt := range cfg.Context {
		b.Context = append(b.Context, protocol.NewMessage(protocol.RoleSystem, prompt))
	}

	if cfg.PromptsPath == "" {
		return b, nil
	}

	prompts, err := LoadPrompts(ctx, NewFileStore(cfg.PromptsPath))
	if err != nil {
		return Bot{}, fmt.Errorf("failed to load prompts for bot %q: %w", cfg.Name, err)
	}
	b.Context = append(b.Context, prompts...)

	return b, nil
}

// WithContext builds a Bot directly from prompt strings.
func WithContext(name string, prompts ...string) Bot {
	b := Bot{Name: name}
	for _, prompt := range prompts {
		b.Context = append(b.Context, protocol.NewMessage(protocol.RoleSystem, prompt))
	}
	return b
}
