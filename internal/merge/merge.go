// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package merge folds per-batch oracle results into one paper.
package merge

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/md2json/internal/oracle"
	"github.com/pdiddy/md2json/pkg/types"
)

// UntitledHeading is the synthetic heading that collects orphan paragraphs
// under the attach policy.
const UntitledHeading = "Untitled"

// Stats counts what one or more merges added to a document.
type Stats struct {
	Headings   int `json:"headings"`
	Paragraphs int `json:"paragraphs"`
	Orphans    int `json:"orphans"`
	References int `json:"references"`
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Headings:   s.Headings + o.Headings,
		Paragraphs: s.Paragraphs + o.Paragraphs,
		Orphans:    s.Orphans + o.Orphans,
		References: s.References + o.References,
	}
}

// Document is the paper being assembled for one conversion. It is owned by
// a single pipeline run and is not safe for concurrent use.
type Document struct {
	policy types.OrphanPolicy
	logger *zap.Logger

	leadSet  bool
	title    string
	authors  []string
	abstract string
	keywords []string
	extra    []types.Field

	sections   []types.Section
	references []types.Reference

	// open is the index path of the deepest most recently opened node.
	open []int
	// headed is set once a real (non-synthetic) heading has been opened.
	headed bool

	stats Stats
}

// NewDocument returns an empty document. An empty policy means attach.
// A nil logger discards diagnostics.
func NewDocument(policy types.OrphanPolicy, logger *zap.Logger) *Document {
	if policy == "" {
		policy = types.OrphanAttach
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Document{policy: policy, logger: logger}
}

// Merge folds r into the document and returns what it added.
//
// Lead metadata is copied on the first lead merge only. Sections from every
// zone are appended in order; references from trailing results accumulate.
// A result without sections leaves the sections untouched.
func (d *Document) Merge(r oracle.Result) Stats {
	var st Stats

	switch res := r.(type) {
	case *oracle.LeadResult:
		if d.leadSet {
			d.logger.Debug("ignoring metadata from repeated lead result", zap.String("title", res.Title))
		} else {
			d.leadSet = true
			d.title = res.Title
			d.authors = slices.Clone(res.Authors)
			d.abstract = res.Abstract
			d.keywords = slices.Clone(res.Keywords)
			d.extra = cloneFields(res.Extra)
		}
	case *oracle.TrailingResult:
		d.references = append(d.references, res.References...)
		st.References = len(res.References)
	}

	for _, s := range r.Sections() {
		d.fold(s, &st)
	}

	d.stats = d.stats.Add(st)
	return st
}

func (d *Document) fold(s types.Section, st *Stats) {
	switch s.Kind {
	case types.KindParagraph:
		d.paragraph(s.Content, st)
	case types.KindSubheading:
		if len(d.sections) == 0 || !d.headed {
			d.openTop(s, st)
			return
		}
		last := len(d.sections) - 1
		parent := &d.sections[last]
		parent.Subsections = append(parent.Subsections, normalize(s))
		d.open = deepest(d.sections, []int{last, len(parent.Subsections) - 1})
		st.Headings++
	default:
		d.openTop(s, st)
	}
}

func (d *Document) openTop(s types.Section, st *Stats) {
	n := normalize(s)
	n.Kind = types.KindHeading
	d.sections = append(d.sections, n)
	d.open = deepest(d.sections, []int{len(d.sections) - 1})
	d.headed = true
	st.Headings++
}

func (d *Document) paragraph(text string, st *Stats) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !d.headed {
		st.Orphans++
		d.logger.Warn("paragraph before any heading",
			zap.String("policy", string(d.policy)),
			zap.String("text", preview(text)))
		if d.policy == types.OrphanDrop {
			return
		}
		if len(d.open) == 0 {
			d.sections = append(d.sections, types.Section{Kind: types.KindHeading, Heading: UntitledHeading})
			d.open = []int{len(d.sections) - 1}
		}
	}
	n := d.node(d.open)
	n.Content = joinParagraphs(n.Content, text)
	st.Paragraphs++
}

// node resolves an index path into the section tree.
func (d *Document) node(path []int) *types.Section {
	n := &d.sections[path[0]]
	for _, i := range path[1:] {
		n = &n.Subsections[i]
	}
	return n
}

// deepest extends path along last children to the most recently opened
// descendant.
func deepest(sections []types.Section, path []int) []int {
	n := &sections[path[0]]
	for _, i := range path[1:] {
		n = &n.Subsections[i]
	}
	for len(n.Subsections) > 0 {
		i := len(n.Subsections) - 1
		path = append(path, i)
		n = &n.Subsections[i]
	}
	return path
}

// normalize deep-copies s and folds any paragraph children into content.
func normalize(s types.Section) types.Section {
	out := types.Section{Kind: s.Kind, Heading: s.Heading, Content: s.Content}
	for _, c := range s.Subsections {
		if c.Kind == types.KindParagraph {
			out.Content = joinParagraphs(out.Content, c.Content)
			continue
		}
		out.Subsections = append(out.Subsections, normalize(c))
	}
	return out
}

// Stats returns the totals of every merge so far.
func (d *Document) Stats() Stats {
	return d.stats
}

// Paper assembles the converted paper. The result shares no memory with
// the document.
func (d *Document) Paper() types.PaperMetadata {
	return types.PaperMetadata{
		Title:      d.title,
		Authors:    slices.Clone(d.authors),
		Abstract:   d.abstract,
		Keywords:   slices.Clone(d.keywords),
		Extra:      cloneFields(d.extra),
		Sections:   types.CloneSections(d.sections),
		References: slices.Clone(d.references),
	}
}

func cloneFields(in []types.Field) []types.Field {
	if in == nil {
		return nil
	}
	out := make([]types.Field, len(in))
	for i, f := range in {
		out[i] = types.Field{Key: f.Key, Value: slices.Clone(f.Value)}
	}
	return out
}

func joinParagraphs(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}

func preview(s string) string {
	const n = 60
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
