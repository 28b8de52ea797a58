// Package openai is an intent provider for OpenAI-compatible chat completion
// endpoints (OpenAI itself, or a local server via a custom base URL).
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/vthunder/chorebot/internal/intent"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4o-mini"

// Config configures the provider
type Config struct {
	APIKey  string
	BaseURL string // optional, e.g. http://localhost:11434/v1
	Model   string
}

// Provider implements intent.Provider
type Provider struct {
	client openai.Client
	model  string
}

// New creates a provider. An API key is required unless BaseURL points at a
// server that does not check one.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (p *Provider) Name() string {
	return "openai:" + p.model
}

// Complete sends the request in JSON mode
func (p *Provider) Complete(ctx context.Context, req intent.Request) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(req.System)}
	for _, m := range req.Messages {
		if m.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
