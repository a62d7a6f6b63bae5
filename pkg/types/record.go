// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ConversionStatus indicates the outcome of converting one Markdown file.
type ConversionStatus string

const (
	ConversionDone    ConversionStatus = "converted"
	ConversionSkipped ConversionStatus = "skipped"
	ConversionFailed  ConversionStatus = "failed"
)

// Usage counts oracle tokens for one call or an accumulation of calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" yaml:"completion_tokens"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Cost returns the USD cost of u under p.
func (u Usage) Cost(p Pricing) float64 {
	return float64(u.PromptTokens)/1000*p.Input + float64(u.CompletionTokens)/1000*p.Output
}

// ConversionRecord describes one attempt to convert a Markdown file. It is
// what the batch driver reports and what the ledger stores.
type ConversionRecord struct {
	RunID      string           `json:"run_id" yaml:"run_id"`
	SourcePath string           `json:"source_path" yaml:"source_path"`
	OutputPath string           `json:"output_path" yaml:"output_path"`
	Status     ConversionStatus `json:"status" yaml:"status"`
	Error      string           `json:"error,omitempty" yaml:"error,omitempty"`
	Model      string           `json:"model" yaml:"model"`
	Batches    int              `json:"batches" yaml:"batches"`
	Usage      Usage            `json:"usage" yaml:"usage"`
	Cost       float64          `json:"cost" yaml:"cost"`
	Orphans    int              `json:"orphans" yaml:"orphans"`
	Duration   time.Duration    `json:"duration" yaml:"duration"`
	At         time.Time        `json:"at" yaml:"at"`

	// Paper is set on success so the ledger can index the result.
	Paper *PaperMetadata `json:"-" yaml:"-"`
}

// Run describes one invocation of the batch driver.
type Run struct {
	ID        string    `json:"id" yaml:"id"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Provider  Provider  `json:"provider" yaml:"provider"`
	Model     string    `json:"model" yaml:"model"`
	Budget    int       `json:"budget" yaml:"budget"`
	Workers   int       `json:"workers" yaml:"workers"`
}
