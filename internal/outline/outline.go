// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package outline tracks the heading hierarchy seen so far in a document.
// The tracker is content-free: it is embedded in oracle prompts so later
// batches can tell whether a heading continues an earlier section.
package outline

import (
	"encoding/json"
	"strings"

	"github.com/pdiddy/md2json/pkg/types"
)

// Node is one heading in the outline.
type Node struct {
	Heading     string `json:"heading"`
	Subsections []Node `json:"subsections"`
}

// Tracker is the outline of a document after zero or more batches.
// The zero value is an empty outline.
type Tracker struct {
	Sections []Node `json:"sections"`
}

// Len returns the number of nodes in the outline at every depth.
func (t Tracker) Len() int {
	return count(t.Sections)
}

func count(nodes []Node) int {
	n := len(nodes)
	for _, c := range nodes {
		n += count(c.Subsections)
	}
	return n
}

// JSON renders the outline for prompt embedding.
func (t Tracker) JSON() string {
	nodes := t.Sections
	if nodes == nil {
		nodes = []Node{}
	}
	b, err := json.Marshal(nodes)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Clone returns a deep copy of t.
func (t Tracker) Clone() Tracker {
	return Tracker{Sections: cloneNodes(t.Sections)}
}

func cloneNodes(in []Node) []Node {
	out := make([]Node, 0, len(in))
	for _, n := range in {
		out = append(out, Node{Heading: n.Heading, Subsections: cloneNodes(n.Subsections)})
	}
	return out
}

// Update returns a new tracker with the headings of sections appended.
// t is not modified. Heading nodes become top-level entries, subheading
// nodes nest under the last top-level entry (or become top-level when there
// is none), and paragraph nodes contribute nothing.
func Update(t Tracker, sections []types.Section) Tracker {
	out := t.Clone()
	for _, s := range sections {
		switch s.Kind {
		case types.KindParagraph:
			continue
		case types.KindSubheading:
			n := Strip(s)
			if last := len(out.Sections) - 1; last >= 0 {
				out.Sections[last].Subsections = append(out.Sections[last].Subsections, n)
			} else {
				out.Sections = append(out.Sections, n)
			}
		default:
			if strings.TrimSpace(s.Heading) == "" && len(s.Subsections) == 0 {
				continue
			}
			out.Sections = append(out.Sections, Strip(s))
		}
	}
	return out
}

// Strip returns the content-free outline node of s. It never shares memory
// with s, and stripping a section rebuilt from a node yields the same node.
func Strip(s types.Section) Node {
	n := Node{Heading: s.Heading, Subsections: make([]Node, 0, len(s.Subsections))}
	for _, sub := range s.Subsections {
		if sub.Kind == types.KindParagraph {
			continue
		}
		n.Subsections = append(n.Subsections, Strip(sub))
	}
	return n
}

// Section converts n back into a content-free section tree.
func (n Node) Section() types.Section {
	s := types.Section{Kind: types.KindHeading, Heading: n.Heading, Subsections: make([]types.Section, 0, len(n.Subsections))}
	for _, c := range n.Subsections {
		sub := c.Section()
		sub.Kind = types.KindSubheading
		s.Subsections = append(s.Subsections, sub)
	}
	return s
}
