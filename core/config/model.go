// Package config holds configuration types shared across subsystems.
package config

const (
	defaultModel       = "gemini-2.5-flash"
	defaultTemperature = 0.5
	defaultTopP        = 1.0
	defaultMaxTokens   = 4000
)

// ModelConfig holds the model parameters sent with every backend request.
// Temperature and TopP are pointers so an explicit zero survives Merge.
type ModelConfig struct {
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Stream      bool     `json:"stream,omitempty" yaml:"stream,omitempty"`
}

// DefaultModelConfig returns the model parameters used when nothing is
// configured.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:       defaultModel,
		Temperature: Float(defaultTemperature),
		TopP:        Float(defaultTopP),
		MaxTokens:   defaultMaxTokens,
	}
}

// Merge applies non-zero values from source into c.
func (c *ModelConfig) Merge(source *ModelConfig) {
	if source == nil {
		return
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.Temperature != nil {
		c.Temperature = Float(*source.Temperature)
	}
	if source.TopP != nil {
		c.TopP = Float(*source.TopP)
	}
	if source.MaxTokens > 0 {
		c.MaxTokens = source.MaxTokens
	}
	if source.Stream {
		c.Stream = true
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
