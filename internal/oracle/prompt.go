// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/pdiddy/md2json/internal/chunk"
)

// cleaningRules is shared by every zone prompt.
const cleaningRules = `The text is OCR output of an academic paper. It may contain recognition errors, broken formatting, and garbage from images. Drop corrupted or unreadable sequences, formulas, and tables. Keep every other piece of valid text exactly as written; do not paraphrase or summarize.

Treat only lines starting with "# " or "## " as headings. Group all paragraphs that belong to a heading under that heading and keep paragraph breaks as blank lines.`

// sectionSchema describes the nested section shape shared by every zone.
const sectionSchema = `Each section is an object with keys "heading" (string), "content" (string, the paragraphs directly under the heading), and "subsections" (a list of sections with the same shape).`

var leadPromptTmpl = template.Must(template.New("lead").Parse(`You convert the opening part of an academic paper into structured JSON.

{{.Rules}}

Return one JSON object with these keys, in this order:
- title: the paper title (string)
- authors: list of author names
- abstract: the abstract text (string)
- keywords: list of keywords or index terms
- sections: list of the body sections that follow the abstract

{{.Schema}}

Respond with the JSON object only. Do not include any text outside it.

Example response:
{"title": "Attention Is All You Need", "authors": ["A. Vaswani", "N. Shazeer"], "abstract": "The dominant sequence transduction models...", "keywords": ["transformer"], "sections": [{"heading": "1 Introduction", "content": "Recurrent neural networks...", "subsections": []}]}
`))

var middlePromptTmpl = template.Must(template.New("middle").Parse(`You convert a later part of an academic paper into structured JSON sections.

{{.Rules}}

Headings already seen in earlier parts of the paper:
{{.Outline}}

Keep the new sections consistent with that outline. If the text opens with paragraphs that continue the last section above, return them as {"type": "paragraph", "content": "..."}. If the text opens with a "## " subheading of the last section above, return {"type": "subheading", "heading": "..."} so it nests there.

Return one JSON object with a single key "sections". {{.Schema}} Do not return title, authors, abstract, or keywords.

Respond with the JSON object only. Do not include any text outside it.

Example response:
{"sections": [{"heading": "3 Method", "content": "We train...", "subsections": [{"heading": "3.1 Data", "content": "The corpus...", "subsections": []}]}]}
`))

var trailingPromptTmpl = template.Must(template.New("trailing").Parse(`You convert the final part of an academic paper into structured JSON: its last sections and its reference list.

{{.Rules}}

Headings already seen in earlier parts of the paper:
{{.Outline}}

Keep the new sections consistent with that outline. Continuation paragraphs and subheadings follow the same rules as before: {"type": "paragraph", "content": "..."} and {"type": "subheading", "heading": "..."}.

Return one JSON object with two keys:
- sections: {{.Schema}}
- references: list of objects, one per bibliography entry, with keys "paper_name" (the cited work's title) and "content" (the full reference text).

Respond with the JSON object only. Do not include any text outside it.

Example response:
{"sections": [{"heading": "6 Conclusion", "content": "We presented...", "subsections": []}], "references": [{"paper_name": "Deep Residual Learning for Image Recognition", "content": "K. He, X. Zhang, S. Ren, and J. Sun. Deep residual learning for image recognition. In CVPR, 2016."}]}
`))

// promptData fills the zone templates.
type promptData struct {
	Rules   string
	Schema  string
	Outline string
}

// renderPrompt executes the system prompt template for zone. outline is the
// tracker JSON; the lead prompt ignores it.
func renderPrompt(zone chunk.Zone, outline string) (string, error) {
	var tmpl *template.Template
	switch zone {
	case chunk.ZoneLead:
		tmpl = leadPromptTmpl
	case chunk.ZoneMiddle:
		tmpl = middlePromptTmpl
	case chunk.ZoneTrailing:
		tmpl = trailingPromptTmpl
	default:
		return "", fmt.Errorf("unknown zone %q", zone)
	}

	var buf bytes.Buffer
	data := promptData{Rules: cleaningRules, Schema: sectionSchema, Outline: outline}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
