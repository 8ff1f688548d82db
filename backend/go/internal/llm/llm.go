package llm

import (
	"context"
	"fmt"

	"otherly/backend/go/internal/config"
)

// TextGenerator turns a prompt into generated text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Model names the underlying model, recorded alongside the tags.
	Model() string
}

// NewClient builds the configured generator. It returns nil, nil when no
// provider credential is configured, which disables tagging.
func NewClient(ctx context.Context, cfg config.LLMConfig) (TextGenerator, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	switch cfg.Provider {
	case "gemini":
		g, err := NewGemini(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
