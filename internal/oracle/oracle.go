package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

// Config controls prompt rendering and call limits.
type Config struct {
	Timeout time.Duration
	Grid    coords.Grid
	Limits  Limits
}

// DefaultConfig returns a 60s timeout, a 10x10 grid and the default limits.
func DefaultConfig() Config {
	return Config{
		Timeout: 60 * time.Second,
		Grid:    coords.Grid{Size: coords.DefaultGridSize},
		Limits:  DefaultLimits(),
	}
}

// Oracle implements the request/response contract over an LLM.
type Oracle struct {
	llm    LLM
	config Config
}

// New creates an Oracle.
func New(llm LLM, config Config) *Oracle {
	return &Oracle{llm: llm, config: config}
}

// Name returns the backend name.
func (o *Oracle) Name() string {
	return o.llm.Name()
}

// Close releases the backend.
func (o *Oracle) Close() error {
	return o.llm.Close()
}

// Generate performs one blocking generation. Every failure is an
// *OracleError.
func (o *Oracle) Generate(ctx context.Context, req *Request) (*Response, error) {
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	prompt := BuildPrompt(req, o.config.Grid, o.config.Limits)
	text, err := o.llm.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		kind := KindTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, &OracleError{Kind: kind, Provider: o.llm.Name(), Err: err}
	}
	return Parse(o.llm.Name(), text, o.config.Limits)
}

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// Default models per provider.
const (
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
)

// NewLLM builds the configured backend. The "fake" provider returns an
// empty FakeLLM for offline runs.
func NewLLM(ctx context.Context, pc ProviderConfig) (LLM, error) {
	model := pc.Model
	switch strings.ToLower(pc.Provider) {
	case "gemini", "google":
		if model == "" {
			model = DefaultGeminiModel
		}
		return NewGeminiLLM(ctx, pc.APIKey, model, pc.Temperature)
	case "openai":
		if model == "" {
			model = DefaultOpenAIModel
		}
		return NewOpenAILLM(pc.APIKey, model, pc.BaseURL, pc.Temperature, pc.MaxTokens)
	case "openrouter":
		if model == "" {
			model = "openai/" + DefaultOpenAIModel
		}
		base := pc.BaseURL
		if base == "" {
			base = OpenRouterBaseURL
		}
		return NewOpenAILLM(pc.APIKey, model, base, pc.Temperature, pc.MaxTokens)
	case "anthropic":
		if model == "" {
			model = DefaultAnthropicModel
		}
		return NewAnthropicLLM(pc.APIKey, model, pc.Temperature, pc.MaxTokens)
	case "fake":
		return NewFakeLLM(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, pc.Provider)
	}
}
