// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/md2json/internal/chunk"
	"github.com/pdiddy/md2json/internal/oracle"
	"github.com/pdiddy/md2json/internal/outline"
	"github.com/pdiddy/md2json/pkg/types"
)

const samplePaper = "# Title\nAbstract text.\n# Intro\nPara one.\n## Sub\nPara two.\n# Refs\n[1] Paper A."

const (
	leadReply     = `{"title":"Title","abstract":"Abstract text.","sections":[{"heading":"Intro","content":"Para one.","subsections":[]}]}`
	trailingReply = "```json\n" + `{"sections":[{"type":"subheading","content":"Sub"},{"type":"paragraph","content":"Para two."}],"references":[{"content":"[1] Paper A."}]}` + "\n```"
)

// scriptedClassifier answers each zone with a canned oracle reply and
// records what it was asked.
type scriptedClassifier struct {
	mu       sync.Mutex
	replies  map[chunk.Zone]string
	err      error
	batches  []chunk.Batch
	trackers []outline.Tracker
}

func newScripted() *scriptedClassifier {
	return &scriptedClassifier{replies: map[chunk.Zone]string{
		chunk.ZoneLead:     leadReply,
		chunk.ZoneMiddle:   `{"sections": []}`,
		chunk.ZoneTrailing: trailingReply,
	}}
}

func (s *scriptedClassifier) Classify(_ context.Context, b chunk.Batch, tr outline.Tracker) (oracle.Result, types.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	s.trackers = append(s.trackers, tr.Clone())

	usage := types.Usage{PromptTokens: 100, CompletionTokens: 20}
	if s.err != nil {
		return nil, usage, s.err
	}
	res, err := oracle.Parse(b.Zone, s.replies[b.Zone])
	return res, usage, err
}

func (s *scriptedClassifier) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestConvertDocument_SamplePaper(t *testing.T) {
	cls := newScripted()

	out, err := ConvertDocument(context.Background(), cls, samplePaper, Options{Budget: 10, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Batches)
	assert.Equal(t, types.Usage{PromptTokens: 200, CompletionTokens: 40}, out.Usage)

	p := out.Paper
	assert.Equal(t, "Title", p.Title)
	assert.Equal(t, "Abstract text.", p.Abstract)
	require.Len(t, p.Sections, 1)
	intro := p.Sections[0]
	assert.Equal(t, "Intro", intro.Heading)
	assert.Equal(t, "Para one.", intro.Content)
	require.Len(t, intro.Subsections, 1)
	assert.Equal(t, "Sub", intro.Subsections[0].Heading)
	assert.Equal(t, "Para two.", intro.Subsections[0].Content)
	assert.Equal(t, []types.Reference{{Content: "[1] Paper A."}}, p.References)

	// The trailing call saw the outline built from the lead batch.
	require.Len(t, cls.trackers, 2)
	assert.Equal(t, 0, cls.trackers[0].Len())
	assert.JSONEq(t, `[{"heading":"Intro","subsections":[]}]`, cls.trackers[1].JSON())
}

func TestConvertDocument_RealClassifier(t *testing.T) {
	stub := &queueOracle{replies: []string{leadReply, trailingReply}}
	cls := oracle.NewClassifier(stub, nil)

	out, err := ConvertDocument(context.Background(), cls, samplePaper, Options{Budget: 10})
	require.NoError(t, err)

	assert.Equal(t, "Title", out.Paper.Title)
	assert.Len(t, out.Paper.References, 1)
	require.Len(t, stub.requests, 2)
	assert.Contains(t, stub.requests[1].System, `"heading":"Intro"`)
	assert.NotContains(t, stub.requests[1].System, "Para one.")
}

func TestConvertDocument_Empty(t *testing.T) {
	cls := newScripted()
	out, err := ConvertDocument(context.Background(), cls, "   \n", Options{})
	require.NoError(t, err)
	assert.Zero(t, cls.calls())
	assert.Empty(t, out.Paper.Sections)
}

func TestConvertDocument_FailureStopsAtFirstBatch(t *testing.T) {
	cls := newScripted()
	cls.replies[chunk.ZoneLead] = "I cannot help with that."

	out, err := ConvertDocument(context.Background(), cls, samplePaper, Options{Budget: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, oracle.ErrParse)
	assert.Equal(t, 1, cls.calls())
	assert.Equal(t, 1, out.Batches)
	assert.Equal(t, 120, out.Usage.Total())
}

func TestConvertDocument_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cls := newScripted()
	_, err := ConvertDocument(ctx, cls, samplePaper, Options{Budget: 10})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, cls.calls())
}

func TestPlan_Normalize(t *testing.T) {
	plan := Plan("＃ Ｔｉｔｌｅ\nｂｏｄｙ", Options{Normalize: true})
	assert.Equal(t, "# Title\nbody", plan.Lead.Text)
}

// queueOracle replies with the next canned text on each call.
type queueOracle struct {
	replies  []string
	requests []oracle.Request
}

func (q *queueOracle) Complete(_ context.Context, req oracle.Request) (oracle.Completion, error) {
	q.requests = append(q.requests, req)
	if len(q.replies) == 0 {
		return oracle.Completion{}, errors.New("no more replies")
	}
	text := q.replies[0]
	q.replies = q.replies[1:]
	return oracle.Completion{Text: text}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.md"), "x")
	writeFile(t, filepath.Join(dir, "nested", "a.MD"), "x")
	writeFile(t, filepath.Join(dir, "notes.txt"), "x")
	writeFile(t, filepath.Join(dir, ".cache", "c.md"), "x")

	srcs, err := Discover([]string{dir, filepath.Join(dir, "b.md")})
	require.NoError(t, err)

	var paths []string
	for _, s := range srcs {
		paths = append(paths, s.Path)
	}
	assert.Equal(t, []string{filepath.Join(dir, "b.md"), filepath.Join(dir, "nested", "a.MD")}, paths)

	_, err = Discover([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name      string
		src       Source
		outputDir string
		want      string
	}{
		{"next to source", Source{Path: "/in/a/paper.md", Root: "/in"}, "", "/in/a/paper.json"},
		{"mirrored", Source{Path: "/in/a/paper.md", Root: "/in"}, "/out", "/out/a/paper.json"},
		{"file at root", Source{Path: "/in/paper.md", Root: "/in"}, "/out", "/out/paper.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), OutputPath(tt.src, tt.outputDir))
		})
	}
}

func TestConvertFile(t *testing.T) {
	tests := []struct {
		name       string
		preCreate  bool
		err        error
		wantStatus types.ConversionStatus
		wantCalls  int
		wantFile   bool
	}{
		{"successful conversion", false, nil, types.ConversionDone, 2, true},
		{"skip existing json", true, nil, types.ConversionSkipped, 0, true},
		{"conversion failure", false, errors.New("oracle down"), types.ConversionFailed, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := Source{Path: filepath.Join(dir, "paper.md"), Root: dir}
			writeFile(t, src.Path, samplePaper)
			out := filepath.Join(dir, "paper.json")
			if tt.preCreate {
				writeFile(t, out, "{}")
			}

			cls := newScripted()
			cls.err = tt.err
			cfg := types.ConversionConfig{ChunkConfig: types.ChunkConfig{Budget: 10}}
			cfg.Model = "qwen2.5-72b-instruct"

			rec := ConvertFile(context.Background(), cls, src, cfg, zaptest.NewLogger(t))
			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.Equal(t, out, rec.OutputPath)
			assert.Equal(t, tt.wantCalls, cls.calls())

			_, statErr := os.Stat(out)
			assert.Equal(t, tt.wantFile, statErr == nil)

			if tt.wantStatus == types.ConversionDone {
				require.NotNil(t, rec.Paper)
				assert.Greater(t, rec.Cost, 0.0)
				raw, err := os.ReadFile(out)
				require.NoError(t, err)
				var got map[string]any
				require.NoError(t, json.Unmarshal(raw, &got))
				assert.Equal(t, "Title", got["title"])
			}
			if tt.err != nil {
				assert.Contains(t, rec.Error, "oracle down")
			}
		})
	}
}

func TestConvertFile_StripsFrontmatter(t *testing.T) {
	dir := t.TempDir()
	src := Source{Path: filepath.Join(dir, "paper.md"), Root: dir}
	writeFile(t, src.Path, "---\npaper_id: \"2301.07041\"\n---\n\n"+samplePaper)

	cls := newScripted()
	rec := ConvertFile(context.Background(), cls, src, types.ConversionConfig{ChunkConfig: types.ChunkConfig{Budget: 10}}, zaptest.NewLogger(t))
	require.Equal(t, types.ConversionDone, rec.Status, rec.Error)
	require.NotEmpty(t, cls.batches)
	assert.True(t, strings.HasPrefix(cls.batches[0].Text, "# Title"))
}

// memRecorder is an in-memory Recorder.
type memRecorder struct {
	runs    []types.Run
	records []types.ConversionRecord
}

func (m *memRecorder) BeginRun(_ context.Context, run types.Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRecorder) Record(_ context.Context, rec types.ConversionRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func TestConvertAll(t *testing.T) {
	in := t.TempDir()
	outDir := t.TempDir()
	writeFile(t, filepath.Join(in, "one.md"), samplePaper)
	writeFile(t, filepath.Join(in, "sub", "two.md"), samplePaper)
	writeFile(t, filepath.Join(in, "sub", "three.md"), samplePaper)

	cfg := types.ConversionConfig{
		ChunkConfig: types.ChunkConfig{Budget: 10},
		InputDir:    in,
		OutputDir:   outDir,
		Workers:     2,
	}
	cfg.Model = "qwen2.5-72b-instruct"

	cls := newScripted()
	rec := &memRecorder{}
	var buf bytes.Buffer
	res, err := ConvertAll(context.Background(), cls, cfg, nil, BatchOptions{Recorder: rec, Logger: zaptest.NewLogger(t), Out: &buf})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Converted)
	assert.Equal(t, 3, res.Total())
	assert.False(t, res.HasFailures())
	assert.Equal(t, 6, cls.calls())
	assert.Equal(t, 720, res.Usage.Total())
	assert.InDelta(t, 3*types.Usage{PromptTokens: 200, CompletionTokens: 40}.Cost(types.DefaultPricing[cfg.Model]), res.Cost, 1e-9)
	assert.FileExists(t, filepath.Join(outDir, "one.json"))
	assert.FileExists(t, filepath.Join(outDir, "sub", "two.json"))
	assert.Equal(t, 3, strings.Count(buf.String(), "converted: "))

	require.Len(t, rec.runs, 1)
	assert.Equal(t, res.RunID, rec.runs[0].ID)
	require.Len(t, rec.records, 3)
	for _, r := range rec.records {
		assert.Equal(t, res.RunID, r.RunID)
	}

	// A second run finds every output in place and calls nothing.
	buf.Reset()
	again, err := ConvertAll(context.Background(), cls, cfg, nil, BatchOptions{Out: &buf})
	require.NoError(t, err)
	assert.Equal(t, 3, again.Skipped)
	assert.Equal(t, 6, cls.calls())
	assert.Equal(t, 3, strings.Count(buf.String(), "skipped: "))
}

func TestConvertAll_FailureDoesNotStopOthers(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, "good.md"), samplePaper)
	writeFile(t, filepath.Join(in, "bad.md"), "# Bad\nno reply for this one")

	cls := newScripted()
	cls.replies[chunk.ZoneLead] = leadReply
	failing := &selectiveClassifier{inner: cls, failOn: "# Bad"}

	var buf bytes.Buffer
	res, err := ConvertAll(context.Background(), failing, types.ConversionConfig{ChunkConfig: types.ChunkConfig{Budget: 10}}, []string{in}, BatchOptions{Out: &buf})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Converted)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.HasFailures())
	assert.Contains(t, buf.String(), "failed:  "+filepath.Join(in, "bad.md"))
	assert.NoFileExists(t, filepath.Join(in, "bad.json"))
	assert.FileExists(t, filepath.Join(in, "good.json"))
}

func TestConvertAll_NoInput(t *testing.T) {
	_, err := ConvertAll(context.Background(), newScripted(), types.ConversionConfig{}, nil, BatchOptions{})
	assert.Error(t, err)
}

// selectiveClassifier fails batches whose text starts with failOn.
type selectiveClassifier struct {
	inner  Classifier
	failOn string
}

func (s *selectiveClassifier) Classify(ctx context.Context, b chunk.Batch, tr outline.Tracker) (oracle.Result, types.Usage, error) {
	if strings.HasPrefix(b.Text, s.failOn) {
		return nil, types.Usage{}, oracle.ErrTransport
	}
	return s.inner.Classify(ctx, b, tr)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "paper.json")
	p := types.PaperMetadata{Title: "A <b> & c"}
	require.NoError(t, WriteJSON(path, p))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"title": "A <b> & c"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStripFrontmatter(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"none", "# T\nbody", "# T\nbody"},
		{"block", "---\na: 1\n---\n\n# T", "# T"},
		{"unterminated", "---\na: 1\n# T", "---\na: 1\n# T"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFrontmatter(tt.in))
		})
	}
}

func TestDescribe(t *testing.T) {
	infos := Describe(Plan(samplePaper, Options{Budget: 10}))
	require.Len(t, infos, 2)
	assert.Equal(t, BatchInfo{Zone: chunk.ZoneLead, Ordinal: 0, Tokens: 8, Segments: 2, Preview: "# Title"}, infos[0])
	assert.Equal(t, chunk.ZoneTrailing, infos[1].Zone)
	assert.Equal(t, "## Sub", infos[1].Preview)
}
