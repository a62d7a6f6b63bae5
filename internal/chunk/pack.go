// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import (
	"strings"
)

// DefaultBudget is the batch token-length limit used when none is configured.
const DefaultBudget = 3000

// separator joins segments inside a batch.
const separator = "\n\n"

// Zone is one of the three processing phases. Each zone has its own oracle
// instructions and expected response schema.
type Zone string

const (
	ZoneLead     Zone = "lead"
	ZoneMiddle   Zone = "middle"
	ZoneTrailing Zone = "trailing"
)

// Batch is the unit of one oracle call.
type Batch struct {
	Zone Zone

	// Ordinal is the position of the batch within its zone.
	Ordinal int

	// Text is the packed segment text, or a rune window of it for re-sliced
	// trailing batches.
	Text string

	// Segments are the segments packed into this batch. Re-sliced trailing
	// windows carry none; Plan.Tail holds the segments they were cut from.
	Segments []Segment
}

// Tokens returns the token length of the batch text.
func (b Batch) Tokens() int {
	return TokenLen(b.Text)
}

// Plan is the zone partition of one document.
type Plan struct {
	Budget   int
	Lead     Batch
	Middle   []Batch
	Trailing []Batch

	// Tail is the trailing zone's segments before any re-slicing.
	Tail []Segment
}

// Batches returns every batch in processing order: the lead batch when it
// has text, then middle batches, then trailing batches.
func (p Plan) Batches() []Batch {
	var out []Batch
	if p.Lead.Text != "" {
		out = append(out, p.Lead)
	}
	out = append(out, p.Middle...)
	out = append(out, p.Trailing...)
	return out
}

// Pack partitions segs into lead, middle, and trailing zones under budget.
//
// The lead zone takes segments from the front while the packed text stays
// within budget; an oversized first segment is taken alone. The trailing
// zone is the last one or two remaining segments, re-sliced into windows of
// budget runes if together they exceed budget. The middle zone is the rest,
// packed greedily into maximal batches. A middle segment longer than budget
// is kept whole in its own batch.
func Pack(segs []Segment, budget int) Plan {
	if budget <= 0 {
		budget = DefaultBudget
	}
	plan := Plan{Budget: budget, Lead: Batch{Zone: ZoneLead}}

	n := greedyPrefix(segs, budget)
	if n == 0 && len(segs) > 0 {
		n = 1
	}
	plan.Lead.Segments = segs[:n]
	plan.Lead.Text = join(segs[:n])
	rest := segs[n:]

	tailLen := min(len(rest), 2)
	plan.Tail = rest[len(rest)-tailLen:]
	rest = rest[:len(rest)-tailLen]

	for len(rest) > 0 {
		k := max(greedyPrefix(rest, budget), 1)
		plan.Middle = append(plan.Middle, Batch{
			Zone:     ZoneMiddle,
			Ordinal:  len(plan.Middle),
			Text:     join(rest[:k]),
			Segments: rest[:k],
		})
		rest = rest[k:]
	}

	if len(plan.Tail) > 0 {
		text := join(plan.Tail)
		if TokenLen(text) <= budget {
			plan.Trailing = []Batch{{Zone: ZoneTrailing, Text: text, Segments: plan.Tail}}
		} else {
			for i, w := range windows(text, budget) {
				plan.Trailing = append(plan.Trailing, Batch{Zone: ZoneTrailing, Ordinal: i, Text: w})
			}
		}
	}

	return plan
}

// greedyPrefix returns how many leading segments fit in budget when joined.
func greedyPrefix(segs []Segment, budget int) int {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteString(separator)
		}
		b.WriteString(s.Text)
		if TokenLen(b.String()) > budget {
			return i
		}
	}
	return len(segs)
}

func join(segs []Segment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.Text
	}
	return strings.Join(parts, separator)
}

// windows cuts text into consecutive slices of at most size runes. Empty
// (all-whitespace) windows are dropped.
func windows(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		if w := strings.TrimSpace(string(runes[start:end])); w != "" {
			out = append(out, w)
		}
	}
	return out
}
