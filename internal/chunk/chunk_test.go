// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePaper = "# Title\nAbstract text.\n# Intro\nPara one.\n## Sub\nPara two.\n# Refs\n[1] Paper A."

func texts(segs []Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Text
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  \n\n\t", nil},
		{"no headings", "just a paragraph\nand another", []string{"just a paragraph\nand another"}},
		{
			"preamble before first heading",
			"Journal of Things\n\n# Title\nbody",
			[]string{"Journal of Things", "# Title\nbody"},
		},
		{
			"level three does not split",
			"# A\none\n### A.1\ntwo\n## B\nthree",
			[]string{"# A\none\n### A.1\ntwo", "## B\nthree"},
		},
		{
			"hash without space does not split",
			"# A\n#hashtag line\n#B",
			[]string{"# A\n#hashtag line\n#B"},
		},
		{
			"mid-line hash does not split",
			"# A\nsee # B inline",
			[]string{"# A\nsee # B inline"},
		},
		{
			"sample paper",
			samplePaper,
			[]string{
				"# Title\nAbstract text.",
				"# Intro\nPara one.",
				"## Sub\nPara two.",
				"# Refs\n[1] Paper A.",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := Segments(tt.in)
			assert.Equal(t, tt.want, nilIfEmpty(texts(segs)))
			for i, s := range segs {
				assert.Equal(t, i, s.Ordinal)
			}
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestSplit_RoundTrip(t *testing.T) {
	docs := []string{
		samplePaper,
		"preface\n\n# One\n\nalpha beta\n\n## Two\ngamma\n### Three\ndelta\n# Four\n",
		"# 引言\n这是第一段。\n## 方法\n这是第二段。",
	}
	for _, doc := range docs {
		joined := strings.Join(texts(Segments(doc)), "")
		assert.Equal(t, strip(doc), strip(joined))
	}
}

func strip(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestSplit_Restartable(t *testing.T) {
	seq := Split(samplePaper)

	var first, second []string
	for s := range seq {
		first = append(first, s.Text)
	}
	for s := range seq {
		second = append(second, s.Text)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestSplit_EarlyBreak(t *testing.T) {
	n := 0
	for range Split(samplePaper) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestTokenLen(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"words", "the quick  brown\nfox", 4},
		{"han counts runes", "深度学习", 4},
		{"mixed counts runes", "BERT 模型", 7},
		{"hiragana", "ひらがな", 4},
		{"hangul", "한국어", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenLen(tt.in))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "file", Normalize("ﬁle"))
	assert.Equal(t, "ABC123", Normalize("ＡＢＣ１２３"))
	assert.Equal(t, "# Title", Normalize("# Title"))
}

func TestPack_SamplePaper(t *testing.T) {
	plan := Pack(Segments(samplePaper), 10)

	assert.Equal(t, ZoneLead, plan.Lead.Zone)
	assert.Equal(t, []string{"# Title\nAbstract text.", "# Intro\nPara one."}, texts(plan.Lead.Segments))
	assert.Empty(t, plan.Middle)
	require.Len(t, plan.Trailing, 1)
	assert.Equal(t, "## Sub\nPara two.\n\n# Refs\n[1] Paper A.", plan.Trailing[0].Text)
	assert.Equal(t, texts(plan.Tail), texts(plan.Trailing[0].Segments))
}

func TestPack_Empty(t *testing.T) {
	plan := Pack(nil, 100)
	assert.Empty(t, plan.Lead.Text)
	assert.Empty(t, plan.Middle)
	assert.Empty(t, plan.Trailing)
	assert.Empty(t, plan.Batches())
}

func TestPack_DefaultBudget(t *testing.T) {
	plan := Pack(Segments(samplePaper), 0)
	assert.Equal(t, DefaultBudget, plan.Budget)
	assert.Len(t, plan.Lead.Segments, 4)
	assert.Empty(t, plan.Tail)
}

func TestPack_OversizedLeadTakenWhole(t *testing.T) {
	segs := []Segment{
		{Text: "# Big\n" + strings.Repeat("word ", 20), Ordinal: 0},
		{Text: "# Next\nx", Ordinal: 1},
	}
	plan := Pack(segs, 5)
	require.Len(t, plan.Lead.Segments, 1)
	assert.Equal(t, segs[0].Text, plan.Lead.Text)
	assert.Equal(t, []string{"# Next\nx"}, texts(plan.Tail))
}

func TestPack_SingleRemainingSegmentIsTrailing(t *testing.T) {
	segs := []Segment{
		{Text: "a b c", Ordinal: 0},
		{Text: "d e f", Ordinal: 1},
	}
	plan := Pack(segs, 3)
	assert.Len(t, plan.Lead.Segments, 1)
	assert.Empty(t, plan.Middle)
	require.Len(t, plan.Trailing, 1)
	assert.Equal(t, "d e f", plan.Trailing[0].Text)
}

func TestPack_TrailingResliced(t *testing.T) {
	segs := []Segment{
		{Text: "lead", Ordinal: 0},
		{Text: strings.Repeat("x ", 10), Ordinal: 1},
		{Text: strings.Repeat("y ", 10), Ordinal: 2},
	}
	for i := range segs {
		segs[i].Text = strings.TrimSpace(segs[i].Text)
	}
	plan := Pack(segs, 8)

	assert.Len(t, plan.Tail, 2)
	require.Greater(t, len(plan.Trailing), 1)
	var rebuilt strings.Builder
	for i, b := range plan.Trailing {
		assert.Equal(t, ZoneTrailing, b.Zone)
		assert.Equal(t, i, b.Ordinal)
		assert.Nil(t, b.Segments)
		assert.LessOrEqual(t, len([]rune(b.Text)), 8)
		rebuilt.WriteString(b.Text)
	}
	assert.Equal(t, strip(join(plan.Tail)), strip(rebuilt.String()))
}

func TestPack_BudgetAndPartition(t *testing.T) {
	var b strings.Builder
	b.WriteString("Preamble line\n")
	for i := range 30 {
		b.WriteString("# Heading ")
		b.WriteString(strings.Repeat("w ", i%7))
		b.WriteString("\nbody ")
		b.WriteString(strings.Repeat("text ", (i*3)%11))
		b.WriteString("\n")
	}
	// One oversized middle segment.
	b.WriteString("## Huge\n" + strings.Repeat("z ", 40) + "\n")
	b.WriteString("# Tail one\nfoo\n# Tail two\nbar\n")

	segs := Segments(b.String())
	const budget = 20
	plan := Pack(segs, budget)

	var covered []Segment
	covered = append(covered, plan.Lead.Segments...)
	for i, m := range plan.Middle {
		assert.Equal(t, ZoneMiddle, m.Zone)
		assert.Equal(t, i, m.Ordinal)
		require.NotEmpty(t, m.Segments)
		if len(m.Segments) > 1 {
			assert.LessOrEqual(t, m.Tokens(), budget)
		}
		covered = append(covered, m.Segments...)
	}
	covered = append(covered, plan.Tail...)

	require.Len(t, covered, len(segs))
	for i, s := range covered {
		assert.Equal(t, i, s.Ordinal, "segments must partition the document in order")
	}
	assert.LessOrEqual(t, plan.Lead.Tokens(), budget)
	for _, tr := range plan.Trailing {
		assert.LessOrEqual(t, tr.Tokens(), budget)
	}
	assert.Equal(t, []string{"# Tail one\nfoo", "# Tail two\nbar"}, texts(plan.Tail))

	batches := plan.Batches()
	assert.Equal(t, ZoneLead, batches[0].Zone)
	assert.Equal(t, ZoneTrailing, batches[len(batches)-1].Zone)
}

func TestPack_MiddleGreedyIsMaximal(t *testing.T) {
	words := []string{"a b c", "d", "e", "f g", "h i j k", "l", "m", "n"}
	segs := make([]Segment, len(words))
	for i, w := range words {
		segs[i] = Segment{Text: w, Ordinal: i}
	}
	plan := Pack(segs, 3)

	assert.Equal(t, []string{"a b c"}, texts(plan.Lead.Segments))
	require.Len(t, plan.Middle, 4)
	assert.Equal(t, []string{"d", "e"}, texts(plan.Middle[0].Segments))
	assert.Equal(t, "d\n\ne", plan.Middle[0].Text)
	assert.Equal(t, []string{"f g"}, texts(plan.Middle[1].Segments))
	assert.Equal(t, []string{"h i j k"}, texts(plan.Middle[2].Segments))
	assert.Equal(t, []string{"l"}, texts(plan.Middle[3].Segments))
	assert.Equal(t, []string{"m", "n"}, texts(plan.Tail))
}

func TestPack_CJKUsesRunes(t *testing.T) {
	segs := []Segment{
		{Text: "# 标题\n摘要", Ordinal: 0},
		{Text: "# 引言\n正文内容", Ordinal: 1},
		{Text: "# 参考\n文献", Ordinal: 2},
	}
	// "# 标题\n摘要" is 7 runes; adding the second segment overflows 10.
	plan := Pack(segs, 10)
	assert.Len(t, plan.Lead.Segments, 1)
	assert.Len(t, plan.Tail, 2)
}
