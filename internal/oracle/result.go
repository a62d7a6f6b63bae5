// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/pdiddy/md2json/internal/chunk"
	"github.com/pdiddy/md2json/pkg/types"
)

// Result is the validated reply for one batch. It is one of *LeadResult,
// *MiddleResult, or *TrailingResult.
type Result interface {
	Zone() chunk.Zone
	// Sections returns the section nodes of the reply in order. Nil when the
	// reply had no sections key.
	Sections() []types.Section
}

// LeadResult is the reply for the lead batch.
type LeadResult struct {
	Title    string
	Authors  []string
	Abstract string
	Keywords []string

	// Extra holds lead keys with no dedicated field, in arrival order.
	Extra []types.Field

	Body []types.Section
}

// MiddleResult is the reply for one middle batch.
type MiddleResult struct {
	Body []types.Section
}

// TrailingResult is the reply for one trailing batch.
type TrailingResult struct {
	Body       []types.Section
	References []types.Reference
}

func (*LeadResult) Zone() chunk.Zone     { return chunk.ZoneLead }
func (*MiddleResult) Zone() chunk.Zone   { return chunk.ZoneMiddle }
func (*TrailingResult) Zone() chunk.Zone { return chunk.ZoneTrailing }

func (r *LeadResult) Sections() []types.Section     { return r.Body }
func (r *MiddleResult) Sections() []types.Section   { return r.Body }
func (r *TrailingResult) Sections() []types.Section { return r.Body }

// Key aliases accepted from the oracle, after normKey.
var (
	titleKeys      = []string{"title", "paper_title"}
	authorsKeys    = []string{"authors", "author"}
	abstractKeys   = []string{"abstract"}
	keywordsKeys   = []string{"keywords", "index_terms", "key_words", "keyword"}
	sectionsKeys   = []string{"sections", "section", "body"}
	referencesKeys = []string{"references", "reference", "bibliography"}

	headingKeys     = []string{"heading", "title", "subheading", "section_title", "name"}
	contentKeys     = []string{"content", "text", "paragraph", "paragraphs", "body"}
	subsectionsKeys = []string{"subsections", "subsection", "children", "sections"}

	paperNameKeys = []string{"paper_name", "title", "name"}
	refTextKeys   = []string{"content", "reference", "text", "citation"}
)

// normKey folds a key to lower snake case so that "Index Terms",
// "index-terms", and "index_terms" compare equal.
func normKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

// lookup returns the value of the first alias present in m. A key spelled
// exactly as the alias wins over one that only normalizes to it; among
// those, keys are tried in sorted order.
func lookup(m map[string]any, aliases []string) (any, string, bool) {
	var sorted []string
	for _, a := range aliases {
		if v, ok := m[a]; ok {
			return v, a, true
		}
		if sorted == nil {
			sorted = slices.Sorted(maps.Keys(m))
		}
		for _, k := range sorted {
			if normKey(k) == a {
				return m[k], k, true
			}
		}
	}
	return nil, "", false
}

// toResult coerces a decoded reply into the tagged union for zone.
func toResult(zone chunk.Zone, doc document) (Result, error) {
	switch zone {
	case chunk.ZoneLead:
		return toLead(doc)
	case chunk.ZoneMiddle:
		secs, err := sectionsOf(doc.fields)
		if err != nil {
			return nil, err
		}
		return &MiddleResult{Body: secs}, nil
	case chunk.ZoneTrailing:
		secs, err := sectionsOf(doc.fields)
		if err != nil {
			return nil, err
		}
		refs, err := referencesOf(doc.fields)
		if err != nil {
			return nil, err
		}
		return &TrailingResult{Body: secs, References: refs}, nil
	default:
		return nil, fmt.Errorf("unknown zone %q", zone)
	}
}

func toLead(doc document) (*LeadResult, error) {
	r := &LeadResult{}
	m := doc.fields
	used := map[string]bool{}

	if v, k, ok := lookup(m, titleKeys); ok {
		used[k] = true
		s, err := asText(v)
		if err != nil {
			return nil, schemaErrorf("title: %v", err)
		}
		r.Title = s
	}
	if v, k, ok := lookup(m, authorsKeys); ok {
		used[k] = true
		list, err := asList(v)
		if err != nil {
			return nil, schemaErrorf("authors: %v", err)
		}
		r.Authors = list
	}
	if v, k, ok := lookup(m, abstractKeys); ok {
		used[k] = true
		s, err := asText(v)
		if err != nil {
			return nil, schemaErrorf("abstract: %v", err)
		}
		r.Abstract = s
	}
	if v, k, ok := lookup(m, keywordsKeys); ok {
		used[k] = true
		list, err := asList(v)
		if err != nil {
			return nil, schemaErrorf("keywords: %v", err)
		}
		r.Keywords = list
	}
	if _, k, ok := lookup(m, sectionsKeys); ok {
		used[k] = true
	}
	secs, err := sectionsOf(m)
	if err != nil {
		return nil, err
	}
	r.Body = secs

	for _, k := range extraKeys(doc, used) {
		if slices.Contains(referencesKeys, normKey(k)) {
			continue
		}
		raw, err := rawJSON(m[k])
		if err != nil {
			return nil, schemaErrorf("%s: %v", k, err)
		}
		r.Extra = append(r.Extra, types.Field{Key: k, Value: raw})
	}
	return r, nil
}

// extraKeys lists the keys of doc not in used, in source order. Keys the
// order scan missed follow in sorted order.
func extraKeys(doc document, used map[string]bool) []string {
	var out []string
	for _, k := range doc.keys {
		if _, ok := doc.fields[k]; ok && !used[k] && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(doc.fields)) {
		if !used[k] && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// sectionsOf reads the sections key. A missing or null key yields nil.
func sectionsOf(m map[string]any) ([]types.Section, error) {
	v, _, ok := lookup(m, sectionsKeys)
	if !ok || v == nil {
		return nil, nil
	}
	secs, err := asSections(v, types.KindHeading)
	if err != nil {
		return nil, schemaErrorf("sections: %v", err)
	}
	if secs == nil {
		secs = []types.Section{}
	}
	return secs, nil
}

// asSections coerces a list of section nodes. kind is the kind given to
// nested-form nodes: heading at the top level, subheading below.
func asSections(v any, kind types.SectionKind) ([]types.Section, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]types.Section, 0, len(t))
		for i, e := range t {
			s, ok, err := asSection(e, kind)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			if ok {
				out = append(out, s)
			}
		}
		return out, nil
	case map[string]any, string:
		s, ok, err := asSection(t, kind)
		if err != nil || !ok {
			return nil, err
		}
		return []types.Section{s}, nil
	default:
		return nil, fmt.Errorf("got %s, want list of sections", typeName(v))
	}
}

// asSection coerces one section node. The bool is false for nodes with
// nothing in them.
func asSection(v any, kind types.SectionKind) (types.Section, bool, error) {
	switch t := v.(type) {
	case nil:
		return types.Section{}, false, nil
	case string:
		text := strings.TrimSpace(t)
		if text == "" {
			return types.Section{}, false, nil
		}
		return types.Section{Kind: types.KindParagraph, Content: text}, true, nil
	case map[string]any:
		if typ, _, ok := lookup(t, []string{"type", "kind", "category"}); ok {
			if name, isStr := typ.(string); isStr {
				return flatSection(t, name)
			}
		}
		return nestedSection(t, kind)
	default:
		return types.Section{}, false, fmt.Errorf("got %s, want section object", typeName(v))
	}
}

// flatSection reads the flat element form {type, content}.
func flatSection(m map[string]any, typ string) (types.Section, bool, error) {
	var k types.SectionKind
	switch normKey(typ) {
	case "heading", "section", "title", "chapter":
		k = types.KindHeading
	case "subheading", "subsection", "subtitle":
		k = types.KindSubheading
	default:
		k = types.KindParagraph
	}

	if k == types.KindParagraph {
		text, err := firstText(m, contentKeys)
		if err != nil {
			return types.Section{}, false, err
		}
		if text == "" {
			return types.Section{}, false, nil
		}
		return types.Section{Kind: k, Content: text}, true, nil
	}

	heading, err := firstText(m, append(slices.Clone(headingKeys), contentKeys...))
	if err != nil {
		return types.Section{}, false, err
	}
	s := types.Section{Kind: k, Heading: trimMarkers(heading)}
	// A heading element may still carry its own body.
	if _, _, hasHeading := lookup(m, headingKeys); hasHeading {
		content, err := firstText(m, contentKeys)
		if err != nil {
			return types.Section{}, false, err
		}
		s.Content = content
	}
	if sub, _, ok := lookup(m, subsectionsKeys); ok {
		if err := addChildren(&s, sub); err != nil {
			return types.Section{}, false, err
		}
	}
	if s.Heading == "" && s.Content == "" && len(s.Subsections) == 0 {
		return types.Section{}, false, nil
	}
	return s, true, nil
}

// nestedSection reads the nested form {heading, content, subsections}.
func nestedSection(m map[string]any, kind types.SectionKind) (types.Section, bool, error) {
	hv, _, hasHeading := lookup(m, headingKeys)
	cv, _, hasContent := lookup(m, contentKeys)
	sv, _, hasSubs := lookup(m, subsectionsKeys)

	if !hasHeading && !hasContent && !hasSubs {
		// {"Introduction": "text"} style: one key naming the heading.
		if len(m) == 1 {
			for k, v := range m {
				s := types.Section{Kind: kind, Heading: strings.TrimSpace(k)}
				if err := addContent(&s, v); err != nil {
					return types.Section{}, false, err
				}
				return s, true, nil
			}
		}
		if len(m) == 0 {
			return types.Section{}, false, nil
		}
		return types.Section{}, false, fmt.Errorf("section object has no heading, content, or subsections")
	}

	s := types.Section{Kind: kind}
	if hasHeading {
		h, err := asText(hv)
		if err != nil {
			return types.Section{}, false, fmt.Errorf("heading: %w", err)
		}
		if kind == types.KindHeading && strings.HasPrefix(h, "## ") {
			s.Kind = types.KindSubheading
		}
		s.Heading = trimMarkers(h)
	}
	if hasContent {
		if err := addContent(&s, cv); err != nil {
			return types.Section{}, false, err
		}
	}
	if hasSubs {
		if err := addChildren(&s, sv); err != nil {
			return types.Section{}, false, err
		}
	}
	if s.Heading == "" {
		if len(s.Subsections) == 0 {
			if s.Content == "" {
				return types.Section{}, false, nil
			}
			s.Kind = types.KindParagraph
		}
	}
	return s, true, nil
}

// addContent appends v to s.Content. A list may mix paragraph strings with
// section objects; the latter become subsections.
func addContent(s *types.Section, v any) error {
	list, isList := v.([]any)
	if !isList {
		text, err := asText(v)
		if err != nil {
			return fmt.Errorf("content: %w", err)
		}
		s.Content = joinParagraphs(s.Content, text)
		return nil
	}
	for i, e := range list {
		child, ok, err := asSection(e, types.KindSubheading)
		if err != nil {
			return fmt.Errorf("content element %d: %w", i, err)
		}
		if !ok {
			continue
		}
		if child.Kind == types.KindParagraph {
			s.Content = joinParagraphs(s.Content, child.Content)
			continue
		}
		s.Subsections = append(s.Subsections, child)
	}
	return nil
}

// addChildren appends the nodes in v as subsections of s. Paragraph nodes
// join s.Content.
func addChildren(s *types.Section, v any) error {
	children, err := asSections(v, types.KindSubheading)
	if err != nil {
		return fmt.Errorf("subsections: %w", err)
	}
	for _, c := range children {
		if c.Kind == types.KindParagraph {
			s.Content = joinParagraphs(s.Content, c.Content)
			continue
		}
		c.Kind = types.KindSubheading
		s.Subsections = append(s.Subsections, c)
	}
	return nil
}

// trimMarkers removes Markdown heading markers echoed back by the oracle.
func trimMarkers(h string) string {
	return strings.TrimSpace(strings.TrimLeft(h, "#"))
}

func joinParagraphs(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}

// firstText returns the text of the first alias present in m.
func firstText(m map[string]any, aliases []string) (string, error) {
	v, k, ok := lookup(m, aliases)
	if !ok {
		return "", nil
	}
	s, err := asText(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", k, err)
	}
	return s, nil
}

// asText coerces a scalar, a list of paragraphs, or an object with a text
// field into a string. Lists are joined with blank lines.
func asText(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []any:
		var out string
		for i, e := range t {
			s, err := asText(e)
			if err != nil {
				return "", fmt.Errorf("element %d: %w", i, err)
			}
			out = joinParagraphs(out, s)
		}
		return out, nil
	case map[string]any:
		if v, _, ok := lookup(t, contentKeys); ok {
			return asText(v)
		}
		if v, _, ok := lookup(t, []string{"name"}); ok {
			return asText(v)
		}
		return "", fmt.Errorf("got object without text, want string")
	default:
		return "", fmt.Errorf("got %s, want string", typeName(v))
	}
}

// asList coerces a list of strings, or a string separated by ";" or ",".
func asList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		sep := ","
		if strings.Contains(t, ";") {
			sep = ";"
		}
		var out []string
		for _, p := range strings.Split(t, sep) {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, e := range t {
			s, err := asText(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("got %s, want list of strings", typeName(v))
	}
}

// referencesOf reads the references key. A missing or null key yields nil.
func referencesOf(m map[string]any) ([]types.Reference, error) {
	v, _, ok := lookup(m, referencesKeys)
	if !ok || v == nil {
		return nil, nil
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
	case string:
		for _, line := range strings.Split(t, "\n") {
			items = append(items, line)
		}
	default:
		return nil, schemaErrorf("references: got %s, want list", typeName(v))
	}

	refs := make([]types.Reference, 0, len(items))
	for i, e := range items {
		ref, ok, err := asReference(e)
		if err != nil {
			return nil, schemaErrorf("references element %d: %v", i, err)
		}
		if ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func asReference(v any) (types.Reference, bool, error) {
	switch t := v.(type) {
	case nil:
		return types.Reference{}, false, nil
	case string:
		s := strings.TrimSpace(t)
		return types.Reference{Content: s}, s != "", nil
	case map[string]any:
		name, err := firstText(t, paperNameKeys)
		if err != nil {
			return types.Reference{}, false, err
		}
		content, err := firstText(t, refTextKeys)
		if err != nil {
			return types.Reference{}, false, err
		}
		if content == "" {
			content = name
		}
		return types.Reference{PaperName: name, Content: content}, content != "", nil
	default:
		return types.Reference{}, false, fmt.Errorf("got %s, want reference", typeName(v))
	}
}
