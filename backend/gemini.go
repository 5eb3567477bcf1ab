package backend

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/tailored-agentic-units/exchange/core/config"
	"github.com/tailored-agentic-units/exchange/core/protocol"
)

// Gemini streams chat completions from the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini client. The API key comes from cfg or the
// environment.
func NewGemini(ctx context.Context, cfg *Config) (*Gemini, error) {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	return &Gemini{client: client}, nil
}

func (g *Gemini) Chat(ctx context.Context, req Request, events chan<- Event) error {
	ctx, handle, release := Abortable(ctx)
	defer release()

	events <- ControllerReady{Handle: handle}

	system, contents := toContents(req.History, req.Content)
	genCfg := generateConfig(req.Config, system)

	var sb strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, req.Config.Model, contents, genCfg) {
		if err != nil {
			if ctx.Err() != nil {
				err = Cause(ctx)
			}
			events <- Failed{Err: fmt.Errorf("gemini stream error: %w", err)}
			return nil
		}
		sb.WriteString(resp.Text())
		events <- Update{Content: sb.String()}
	}

	if ctx.Err() != nil {
		events <- Failed{Err: Cause(ctx)}
		return nil
	}

	events <- Reply(req, sb.String())
	return nil
}

// toContents splits history into the system instruction and the turn list.
// URL-sourced and assistant messages are sent as model turns.
func toContents(history []protocol.Message, turn string) (*genai.Content, []*genai.Content) {
	var systemParts []*genai.Part
	contents := make([]*genai.Content, 0, len(history)+1)

	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case protocol.RoleSystem:
			systemParts = append(systemParts, &genai.Part{Text: msg.Content})
		case protocol.RoleAssistant, protocol.RoleURL:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	contents = append(contents, genai.NewContentFromText(turn, genai.RoleUser))

	if len(systemParts) == 0 {
		return nil, contents
	}
	return &genai.Content{Parts: systemParts}, contents
}

func generateConfig(cfg config.ModelConfig, system *genai.Content) *genai.GenerateContentConfig {
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		MaxOutputTokens:   int32(cfg.MaxTokens),
	}
	if cfg.Temperature != nil {
		genCfg.Temperature = genai.Ptr(float32(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		genCfg.TopP = genai.Ptr(float32(*cfg.TopP))
	}
	return genCfg
}
