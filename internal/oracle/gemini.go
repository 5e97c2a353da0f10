package oracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiLLM calls Google's Gemini models through the genai SDK.
type GeminiLLM struct {
	cli         *genai.Client
	model       string
	temperature float32
}

// NewGeminiLLM creates a Gemini backend.
func NewGeminiLLM(ctx context.Context, apiKey, model string, temperature float64) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiLLM{cli: cli, model: model, temperature: float32(temperature)}, nil
}

func (g *GeminiLLM) Name() string { return "gemini:" + g.model }
func (g *GeminiLLM) Close() error { return nil }

// Complete requests an application/json reply.
func (g *GeminiLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := g.temperature
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
			ResponseMIMEType:  "application/json",
			Temperature:       &temp,
		},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
