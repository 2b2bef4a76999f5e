// Package llm is the completion boundary used by the dialogue orchestrator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sampling defaults used for every assistant turn.
const (
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.1
	DefaultTopK        = 10
)

// ErrEmptyCompletion is returned when a provider answers without text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Request is one single-prompt completion. A nil Temperature means unset so
// an explicit zero survives WithDefaults.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature *float64
	TopK        int
}

// Float returns a pointer to v, for setting Request.Temperature.
func Float(v float64) *float64 { return &v }

// WithDefaults fills unset sampling fields.
func (r Request) WithDefaults() Request {
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature == nil {
		r.Temperature = Float(DefaultTemperature)
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	return r
}

// Completer turns a prompt into assistant text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string // anthropic, gemini or mock
	APIKey   string
	Model    string
	BaseURL  string
}

// New builds the Completer named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return NewAnthropic(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "mock":
		return &Mock{}, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
