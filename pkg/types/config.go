// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Provider identifies the oracle backend family.
type Provider string

const (
	// ProviderOpenAI covers every OpenAI-compatible chat completions
	// endpoint (OpenAI, DashScope compatible-mode, api2d).
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// OrphanPolicy decides what happens to a paragraph that arrives before any
// heading has been opened in the document.
type OrphanPolicy string

const (
	// OrphanAttach places the paragraph under a synthetic "Untitled" heading.
	OrphanAttach OrphanPolicy = "attach"
	// OrphanDrop discards the paragraph. It is still counted and logged.
	OrphanDrop OrphanPolicy = "drop"
)

// OracleConfig holds settings for the classification oracle.
type OracleConfig struct {
	// Provider selects the backend: openai or anthropic.
	Provider Provider `json:"provider" yaml:"provider"`

	// Model is the model identifier (e.g. "qwen2.5-72b-instruct").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the oracle API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Timeout bounds a single oracle request (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxTokens caps the completion length (default 8192).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// RateLimitRetries is the number of waits on HTTP 429 before giving up.
	// Zero means every batch reaches the oracle exactly once.
	RateLimitRetries int `json:"rate_limit_retries" yaml:"rate_limit_retries"`
}

// ChunkConfig holds settings for splitting and packing.
type ChunkConfig struct {
	// Budget is the token-length limit of one batch (default 3000).
	Budget int `json:"budget" yaml:"budget"`

	// Normalize applies NFKC normalization to the OCR text before splitting.
	Normalize bool `json:"normalize" yaml:"normalize"`
}

// Pricing is the USD price per 1K tokens for one model.
type Pricing struct {
	Input  float64 `json:"input" yaml:"input" mapstructure:"input"`
	Output float64 `json:"output" yaml:"output" mapstructure:"output"`
}

// DefaultPricing lists the models the batch driver knows prices for.
var DefaultPricing = map[string]Pricing{
	"qwen2.5-72b-instruct": {Input: 0.004, Output: 0.012},
	"gpt-4o":               {Input: 0.00875, Output: 0.035},
}

// ConversionConfig holds settings for the conversion stage.
type ConversionConfig struct {
	OracleConfig `yaml:",inline"`
	ChunkConfig  `yaml:",inline"`

	// InputDir is searched recursively for Markdown files.
	InputDir string `json:"input_dir" yaml:"input_dir"`

	// OutputDir mirrors the input tree for JSON output. When empty the JSON
	// file is written next to its Markdown source.
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`

	// Workers is the number of documents converted concurrently (default 1).
	Workers int `json:"workers" yaml:"workers"`

	// OrphanPolicy is attach or drop (default attach).
	OrphanPolicy OrphanPolicy `json:"orphan_policy" yaml:"orphan_policy"`

	// Pricing maps model identifiers to token prices.
	Pricing map[string]Pricing `json:"pricing,omitempty" yaml:"pricing,omitempty"`

	// LedgerPath is the SQLite ledger location. Empty means
	// <input_dir>/.md2json/ledger.db.
	LedgerPath string `json:"ledger_path,omitempty" yaml:"ledger_path,omitempty"`
}

// PriceFor returns the pricing entry for the configured model, falling back
// to DefaultPricing. The second result is false when the model is unknown.
func (c ConversionConfig) PriceFor(model string) (Pricing, bool) {
	if p, ok := c.Pricing[model]; ok {
		return p, true
	}
	p, ok := DefaultPricing[model]
	return p, ok
}

// ServeConfig holds settings for the HTTP conversion service.
type ServeConfig struct {
	// Addr is the listen address (default ":8090").
	Addr string `json:"addr" yaml:"addr"`

	// RequestTimeout bounds one conversion request (default 10m).
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// APIKey, when set, is required as a bearer token on /v1 routes.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxBodyBytes caps the request body (default 8 MiB).
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}
