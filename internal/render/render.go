// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render turns a converted paper back into readable Markdown or
// HTML, and reads the heading outline of Markdown sources.
package render

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/pdiddy/md2json/pkg/types"
)

// maxDepth is the deepest Markdown heading level.
const maxDepth = 6

// Markdown renders p as a Markdown document: the title as a level-1
// heading, metadata lines, the abstract, every section at its nesting
// depth, and a numbered reference list.
func Markdown(p types.PaperMetadata) string {
	var b strings.Builder

	if p.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", p.Title)
	}
	if len(p.Authors) > 0 {
		fmt.Fprintf(&b, "**Authors:** %s\n\n", strings.Join(p.Authors, ", "))
	}
	if len(p.Keywords) > 0 {
		fmt.Fprintf(&b, "**Keywords:** %s\n\n", strings.Join(p.Keywords, ", "))
	}
	if p.Abstract != "" {
		fmt.Fprintf(&b, "## Abstract\n\n%s\n\n", p.Abstract)
	}

	for _, s := range p.Sections {
		writeSection(&b, s, 2)
	}

	if len(p.References) > 0 {
		b.WriteString("## References\n\n")
		for i, r := range p.References {
			line := r.Content
			if line == "" {
				line = r.PaperName
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, escapeListMarker(line))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeSection(b *strings.Builder, s types.Section, depth int) {
	if s.Heading != "" {
		fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", min(depth, maxDepth)), s.Heading)
	}
	if c := strings.TrimSpace(s.Content); c != "" {
		b.WriteString(c)
		b.WriteString("\n\n")
	}
	for _, sub := range s.Subsections {
		writeSection(b, sub, depth+1)
	}
}

// escapeListMarker keeps a reference that starts with "[1]" from being
// read as a link reference definition.
func escapeListMarker(s string) string {
	if strings.HasPrefix(s, "[") {
		return `\` + s
	}
	return s
}

// HTML renders p as an HTML fragment. Raw HTML in the paper text is
// omitted by the Markdown renderer.
func HTML(w io.Writer, p types.PaperMetadata) error {
	if err := goldmark.Convert([]byte(Markdown(p)), w); err != nil {
		return fmt.Errorf("rendering HTML: %w", err)
	}
	return nil
}

// Heading is one heading found in a Markdown source.
type Heading struct {
	Level int    `json:"level" yaml:"level"`
	Text  string `json:"text" yaml:"text"`
}

// Headings returns the ATX and setext headings of src in document order.
func Headings(src []byte) []Heading {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var out []Heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		var buf bytes.Buffer
		lines := h.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		out = append(out, Heading{Level: h.Level, Text: strings.TrimSpace(buf.String())})
	}
	return out
}
