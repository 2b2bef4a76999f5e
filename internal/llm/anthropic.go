package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-3-5-sonnet-latest"
	defaultTimeout        = 60 * time.Second
)

// AnthropicConfig configures the Messages API provider. BaseURL is the API
// root without the /v1 segment; empty uses the SDK default.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Anthropic implements Completer over the Messages API.
type Anthropic struct {
	model  anthropic.Model
	client anthropic.Client
}

// NewAnthropic returns a provider safe for concurrent use.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		model:  anthropic.Model(cfg.Model),
		client: anthropic.NewClient(opts...),
	}
}

// Complete sends the prompt as a single user message.
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	req = req.WithDefaults()
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(*req.Temperature),
		TopK:        anthropic.Int(int64(req.TopK)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("anthropic: API error (HTTP %d): %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("anthropic: messages request: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
