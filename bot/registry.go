package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry manages named bot configurations with lazy resolution.
// Configs are stored at registration time; bots are resolved on first
// Get call. Thread-safe for concurrent access.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
	bots    map[string]Bot
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		configs: make(map[string]Config),
		bots:    make(map[string]Bot),
	}
}

// Get retrieves a named bot, resolving its prompts on first access.
func (r *Registry) Get(ctx context.Context, name string) (Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, registered := r.configs[name]
	if !registered {
		return Bot{}, fmt.Errorf("%w: %s", ErrBotNotFound, name)
	}

	if b, exists := r.bots[name]; exists {
		return b, nil
	}

	if cfg.Name == "" {
		cfg.Name = name
	}
	b, err := New(ctx, &cfg)
	if err != nil {
		return Bot{}, fmt.Errorf("failed to create bot %q: %w", name, err)
	}

	r.bots[name] = b
	return b, nil
}

// List returns the names of all registered bots, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a named bot configuration to the registry.
// The bot is not resolved until Get is called.
func (r *Registry) Register(name string, cfg Config) error {
	if name == "" {
		return ErrEmptyBotName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; exists {
		return fmt.Errorf("%w: %s", ErrBotExists, name)
	}

	r.configs[name] = cfg
	return nil
}

// Replace updates the configuration for an existing named bot.
// Any resolved bot is invalidated; the next Get re-resolves.
func (r *Registry) Replace(name string, cfg Config) error {
	if name == "" {
		return ErrEmptyBotName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrBotNotFound, name)
	}

	r.configs[name] = cfg
	delete(r.bots, name)
	return nil
}

// Unregister removes a named bot from the registry.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrBotNotFound, name)
	}

	delete(r.configs, name)
	delete(r.bots, name)
	return nil
}
