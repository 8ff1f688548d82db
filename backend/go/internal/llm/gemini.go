package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"otherly/backend/go/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Gemini generates JSON-mode text with a low temperature.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// NewGemini creates a Gemini client for cfg.Model.
func NewGemini(ctx context.Context, cfg config.GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.ResponseMIMEType = "application/json"

	return &Gemini{client: client, model: model, name: cfg.Model}, nil
}

// Generate sends prompt as a single user turn.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return textOf(resp)
}

func (g *Gemini) Model() string {
	return g.name
}

// Close releases the underlying connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// textOf concatenates the text parts of the first candidate.
func textOf(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
