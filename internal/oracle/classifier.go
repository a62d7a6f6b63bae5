// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/md2json/internal/chunk"
	"github.com/pdiddy/md2json/internal/outline"
	"github.com/pdiddy/md2json/pkg/types"
)

// Classifier turns batches into zone results through an Oracle.
type Classifier struct {
	oracle Oracle
	logger *zap.Logger
}

// NewClassifier returns a Classifier backed by o. A nil logger discards
// diagnostics.
func NewClassifier(o Oracle, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{oracle: o, logger: logger}
}

// Classify sends b to the oracle exactly once and validates the reply. The
// middle and trailing prompts carry tr so the oracle can place continuation
// headings. The returned usage is the call's token cost; it is set even
// when the reply fails to parse.
func (c *Classifier) Classify(ctx context.Context, b chunk.Batch, tr outline.Tracker) (Result, types.Usage, error) {
	system, err := renderPrompt(b.Zone, tr.JSON())
	if err != nil {
		return nil, types.Usage{}, fmt.Errorf("rendering %s prompt: %w", b.Zone, err)
	}

	comp, err := c.oracle.Complete(ctx, Request{System: system, User: b.Text})
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil, comp.Usage, fmt.Errorf("%s batch %d: %w", b.Zone, b.Ordinal, err)
	}

	c.logger.Debug("oracle reply",
		zap.String("zone", string(b.Zone)),
		zap.Int("ordinal", b.Ordinal),
		zap.Int("tokens", b.Tokens()),
		zap.Int("prompt_tokens", comp.Usage.PromptTokens),
		zap.Int("completion_tokens", comp.Usage.CompletionTokens))

	res, err := Parse(b.Zone, comp.Text)
	if err != nil {
		return nil, comp.Usage, fmt.Errorf("%s batch %d: %w", b.Zone, b.Ordinal, err)
	}
	return res, comp.Usage, nil
}

// Parse decodes an oracle reply for zone into its result type.
func Parse(zone chunk.Zone, reply string) (Result, error) {
	doc, err := decode(reply)
	if err != nil {
		return nil, err
	}
	return toResult(zone, doc)
}
