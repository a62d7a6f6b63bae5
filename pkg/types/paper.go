// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SectionKind says how a section node was classified by the oracle.
type SectionKind string

const (
	KindHeading    SectionKind = "heading"
	KindSubheading SectionKind = "subheading"
	KindParagraph  SectionKind = "paragraph"
)

// Section is one heading, subheading, or paragraph group of a paper.
// Only headings and subheadings carry subsections; paragraph nodes exist
// transiently between decoding and merging and are folded into the nearest
// open heading before a paper is written.
type Section struct {
	// Kind is not serialized; written papers contain headings only.
	Kind SectionKind `json:"-" yaml:"-"`

	// Heading is the heading text. Empty for paragraph nodes.
	Heading string `json:"heading" yaml:"heading"`

	// Content holds the paragraphs that belong directly to this heading,
	// separated by blank lines.
	Content string `json:"content" yaml:"content"`

	// Subsections are nested sections in document order.
	Subsections []Section `json:"subsections" yaml:"subsections"`
}

// Clone returns a deep copy of s. Subsections is never nil in the copy so
// that written papers always carry an array.
func (s Section) Clone() Section {
	out := Section{
		Kind:        s.Kind,
		Heading:     s.Heading,
		Content:     s.Content,
		Subsections: make([]Section, 0, len(s.Subsections)),
	}
	for _, sub := range s.Subsections {
		out.Subsections = append(out.Subsections, sub.Clone())
	}
	return out
}

// CloneSections deep-copies a section list.
func CloneSections(in []Section) []Section {
	out := make([]Section, 0, len(in))
	for _, s := range in {
		out = append(out, s.Clone())
	}
	return out
}

// Reference is one bibliography entry from the trailing part of a paper.
type Reference struct {
	// PaperName is the cited work's title when the oracle could extract it.
	PaperName string `json:"paper_name,omitempty" yaml:"paper_name,omitempty"`

	// Content is the full reference text.
	Content string `json:"content" yaml:"content"`
}

// Field is a lead-zone key that has no dedicated PaperMetadata field
// (e.g. "affiliations"). Value holds the raw JSON the oracle returned.
type Field struct {
	Key   string
	Value json.RawMessage
}

// PaperMetadata is the structured form of one converted paper.
type PaperMetadata struct {
	Title      string      `json:"title" yaml:"title"`
	Authors    []string    `json:"authors" yaml:"authors"`
	Abstract   string      `json:"abstract" yaml:"abstract"`
	Keywords   []string    `json:"keywords" yaml:"keywords"`
	Extra      []Field     `json:"-" yaml:"-"`
	Sections   []Section   `json:"sections" yaml:"sections"`
	References []Reference `json:"references" yaml:"references"`
}

// MarshalJSON writes the paper with a fixed key order: title, authors,
// abstract, keywords, any extra lead keys, sections, references. Nil lists
// are written as empty arrays.
func (p PaperMetadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(key string, v any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		val, err := marshalNoEscape(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	authors := p.Authors
	if authors == nil {
		authors = []string{}
	}
	keywords := p.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	sections := p.Sections
	if sections == nil {
		sections = []Section{}
	}
	refs := p.References
	if refs == nil {
		refs = []Reference{}
	}

	if err := write("title", p.Title); err != nil {
		return nil, err
	}
	if err := write("authors", authors); err != nil {
		return nil, err
	}
	if err := write("abstract", p.Abstract); err != nil {
		return nil, err
	}
	if err := write("keywords", keywords); err != nil {
		return nil, err
	}
	for _, f := range p.Extra {
		if err := write(f.Key, f.Value); err != nil {
			return nil, err
		}
	}
	if err := write("sections", sections); err != nil {
		return nil, err
	}
	if err := write("references", refs); err != nil {
		return nil, err
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNoEscape marshals v without HTML escaping so that "<", ">" and "&"
// in paper text survive unchanged.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
