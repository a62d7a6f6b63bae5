// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/md2json/internal/chunk"
	"github.com/pdiddy/md2json/internal/merge"
	"github.com/pdiddy/md2json/internal/oracle"
	"github.com/pdiddy/md2json/internal/outline"
	"github.com/pdiddy/md2json/pkg/types"
)

// Classifier classifies one batch given the outline so far. The oracle
// package's Classifier is the production implementation; tests supply
// scripted ones.
type Classifier interface {
	Classify(ctx context.Context, b chunk.Batch, tr outline.Tracker) (oracle.Result, types.Usage, error)
}

// Options tunes a single document conversion.
type Options struct {
	// Budget is the batch token limit (default chunk.DefaultBudget).
	Budget int

	// Normalize applies NFKC to the text before splitting.
	Normalize bool

	// OrphanPolicy decides the fate of paragraphs before the first heading.
	OrphanPolicy types.OrphanPolicy

	Logger *zap.Logger
}

// Outcome is what one document conversion produced. On failure Paper is
// empty but Batches and Usage still report the calls that were made.
type Outcome struct {
	Paper   types.PaperMetadata
	Plan    chunk.Plan
	Batches int
	Usage   types.Usage
	Merge   merge.Stats
}

// run is the state of one document conversion. It is owned by a single
// ConvertDocument call and never shared.
type run struct {
	cls     Classifier
	logger  *zap.Logger
	tracker outline.Tracker
	doc     *merge.Document
	usage   types.Usage
	batches int
}

// ConvertDocument converts the Markdown text of one paper. Batches are
// classified strictly in order: each call sees the outline updated with
// every earlier batch. The first failing batch aborts the document.
func ConvertDocument(ctx context.Context, cls Classifier, text string, opts Options) (Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	plan := Plan(text, opts)
	r := &run{
		cls:    cls,
		logger: logger,
		doc:    merge.NewDocument(opts.OrphanPolicy, logger),
	}

	for _, b := range plan.Batches() {
		if err := r.step(ctx, b); err != nil {
			return Outcome{Plan: plan, Batches: r.batches, Usage: r.usage, Merge: r.doc.Stats()}, err
		}
	}

	return Outcome{
		Paper:   r.doc.Paper(),
		Plan:    plan,
		Batches: r.batches,
		Usage:   r.usage,
		Merge:   r.doc.Stats(),
	}, nil
}

// Plan splits and packs text without calling the oracle.
func Plan(text string, opts Options) chunk.Plan {
	if opts.Normalize {
		text = chunk.Normalize(text)
	}
	return chunk.Pack(chunk.Segments(text), opts.Budget)
}

func (r *run) step(ctx context.Context, b chunk.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, usage, err := r.cls.Classify(ctx, b, r.tracker)
	r.batches++
	r.usage = r.usage.Add(usage)
	if err != nil {
		return fmt.Errorf("classifying batch %d (%s): %w", r.batches, b.Zone, err)
	}

	r.tracker = outline.Update(r.tracker, res.Sections())
	st := r.doc.Merge(res)

	r.logger.Debug("merged batch",
		zap.String("zone", string(b.Zone)),
		zap.Int("ordinal", b.Ordinal),
		zap.Int("headings", st.Headings),
		zap.Int("paragraphs", st.Paragraphs),
		zap.Int("references", st.References),
		zap.Int("outline", r.tracker.Len()))
	return nil
}

// BatchInfo describes one planned batch without its full text.
type BatchInfo struct {
	Zone     chunk.Zone `json:"zone" yaml:"zone"`
	Ordinal  int        `json:"ordinal" yaml:"ordinal"`
	Tokens   int        `json:"tokens" yaml:"tokens"`
	Segments int        `json:"segments" yaml:"segments"`
	Preview  string     `json:"preview" yaml:"preview"`
}

// Describe lists the batches of p in call order.
func Describe(p chunk.Plan) []BatchInfo {
	batches := p.Batches()
	out := make([]BatchInfo, 0, len(batches))
	for _, b := range batches {
		out = append(out, BatchInfo{
			Zone:     b.Zone,
			Ordinal:  b.Ordinal,
			Tokens:   b.Tokens(),
			Segments: len(b.Segments),
			Preview:  firstLine(b.Text),
		})
	}
	return out
}

func firstLine(s string) string {
	const n = 60
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
