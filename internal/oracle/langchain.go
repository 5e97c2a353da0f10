package oracle

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenRouterBaseURL is the OpenAI compatible OpenRouter endpoint.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// LangChainLLM adapts any langchaingo chat model.
type LangChainLLM struct {
	model       llms.Model
	name        string
	temperature float64
	maxTokens   int
}

// NewLangChainLLM wraps an existing langchaingo model.
func NewLangChainLLM(name string, model llms.Model, temperature float64, maxTokens int) *LangChainLLM {
	return &LangChainLLM{model: model, name: name, temperature: temperature, maxTokens: maxTokens}
}

// NewOpenAILLM creates an OpenAI backend in JSON mode. baseURL selects an
// OpenAI compatible endpoint such as OpenRouter.
func NewOpenAILLM(apiKey, model, baseURL string, temperature float64, maxTokens int) (*LangChainLLM, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithResponseFormat(openai.ResponseFormatJSON),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return NewLangChainLLM("openai:"+model, llm, temperature, maxTokens), nil
}

// NewAnthropicLLM creates an Anthropic backend.
func NewAnthropicLLM(apiKey, model string, temperature float64, maxTokens int) (*LangChainLLM, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	llm, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("creating anthropic client: %w", err)
	}
	return NewLangChainLLM("anthropic:"+model, llm, temperature, maxTokens), nil
}

func (l *LangChainLLM) Name() string { return l.name }
func (l *LangChainLLM) Close() error { return nil }

// Complete sends a system and a human message.
func (l *LangChainLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(l.temperature)}
	if l.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(l.maxTokens))
	}
	resp, err := l.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
