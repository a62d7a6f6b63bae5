// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/pdiddy/md2json/pkg/types"
)

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint:
// OpenAI itself, DashScope compatible mode, or a proxy such as api2d.
type OpenAIBackend struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIBackend builds a backend from cfg. The client retries only as
// many times as cfg.RateLimitRetries allows, so the default is one call.
func NewOpenAIBackend(cfg types.OracleConfig, opts ...option.RequestOption) *OpenAIBackend {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.RateLimitRetries),
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIBackend{
		client:    openai.NewClient(append(base, opts...)...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Complete sends the system and user messages and returns the first choice.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(0),
	}
	if b.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(b.maxTokens))
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Completion{}, &StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return Completion{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	usage := types.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) == 0 {
		return Completion{Usage: usage}, fmt.Errorf("%w: response has no choices", ErrTransport)
	}
	return Completion{Text: resp.Choices[0].Message.Content, Usage: usage}, nil
}
