// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package oracle classifies packed batches with an LLM. It renders the
// zone prompt, makes exactly one completion call per batch, and turns the
// reply into a validated LeadResult, MiddleResult, or TrailingResult.
package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/md2json/pkg/types"
)

// Default oracle settings.
const (
	DefaultModel       = "qwen2.5-72b-instruct"
	DefaultClaudeModel = "claude-3-5-sonnet-latest"
	DefaultBaseURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultTimeout     = 120 * time.Second
	DefaultMaxTokens   = 8192
)

// Request is one completion request.
type Request struct {
	System string
	User   string
}

// Completion is the oracle's reply text and token usage.
type Completion struct {
	Text  string
	Usage types.Usage
}

// Oracle is a chat-completion backend. Implementations are stateless and
// safe for concurrent use by several documents.
type Oracle interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// New returns the backend selected by cfg.Provider. Empty settings take the
// package defaults.
func New(cfg types.OracleConfig, logger *zap.Logger) (Oracle, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch cfg.Provider {
	case types.ProviderOpenAI, "":
		if cfg.Model == "" {
			cfg.Model = DefaultModel
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultBaseURL
		}
		return NewOpenAIBackend(cfg), nil
	case types.ProviderAnthropic:
		if cfg.Model == "" {
			cfg.Model = DefaultClaudeModel
		}
		b := NewClaudeBackend(cfg)
		b.Logger = logger
		return b, nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}
