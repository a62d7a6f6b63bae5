// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunk splits OCR Markdown into heading-bounded segments and packs
// them into token-budgeted batches for the lead, middle, and trailing zones.
package chunk

import (
	"iter"
	"regexp"
	"slices"
	"strings"
)

// chapterRe matches the start of a line that opens a level-1 or level-2
// heading. "### " lines do not match: after "##" the next byte must be a space.
var chapterRe = regexp.MustCompile(`(?m)^#{1,2} `)

// Segment is a contiguous span of source text that begins at a level-1 or
// level-2 heading, or at the start of the document.
type Segment struct {
	// Text is the trimmed span.
	Text string

	// Ordinal is the position among emitted (non-empty) segments.
	Ordinal int
}

// Split returns the segments of text in document order. The sequence is
// lazy and restartable: each range over it scans text again. Boundaries fall
// immediately before every line that starts with "# " or "## ". Segments
// are whitespace-trimmed and empty ones are skipped.
func Split(text string) iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		bounds := chapterRe.FindAllStringIndex(text, -1)
		ordinal := 0
		start := 0
		emit := func(end int) bool {
			s := strings.TrimSpace(text[start:end])
			start = end
			if s == "" {
				return true
			}
			ok := yield(Segment{Text: s, Ordinal: ordinal})
			ordinal++
			return ok
		}
		for _, b := range bounds {
			if b[0] == 0 {
				continue
			}
			if !emit(b[0]) {
				return
			}
		}
		emit(len(text))
	}
}

// Segments collects Split(text) into a slice.
func Segments(text string) []Segment {
	return slices.Collect(Split(text))
}
