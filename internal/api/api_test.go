// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
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

// zoneClassifier replies per zone through the real reply parser.
type zoneClassifier struct {
	mu      sync.Mutex
	replies map[chunk.Zone]string
	err     error
	calls   int
}

func (z *zoneClassifier) Classify(_ context.Context, b chunk.Batch, _ outline.Tracker) (oracle.Result, types.Usage, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.calls++
	usage := types.Usage{PromptTokens: 10, CompletionTokens: 3}
	if z.err != nil {
		return nil, usage, z.err
	}
	res, err := oracle.Parse(b.Zone, z.replies[b.Zone])
	return res, usage, err
}

func newZoneClassifier() *zoneClassifier {
	return &zoneClassifier{replies: map[chunk.Zone]string{
		chunk.ZoneLead:     `{"title": "Title <T>", "abstract": "Abstract text.", "sections": [{"heading": "Intro", "content": "Para one."}]}`,
		chunk.ZoneMiddle:   `{"sections": []}`,
		chunk.ZoneTrailing: `{"sections": [{"type": "subheading", "content": "Sub"}, {"type": "paragraph", "content": "Para two."}], "references": ["[1] Paper A."]}`,
	}}
}

func newTestServer(t *testing.T, cls *zoneClassifier, cfg types.ServeConfig) *httptest.Server {
	t.Helper()
	conv := types.ConversionConfig{ChunkConfig: types.ChunkConfig{Budget: 10}}
	srv := NewServer(cls, conv, cfg, zaptest.NewLogger(t))
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, contentType, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, newZoneClassifier(), types.ServeConfig{APIKey: "secret"})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestConvert_RawMarkdown(t *testing.T) {
	cls := newZoneClassifier()
	ts := newTestServer(t, cls, types.ServeConfig{})

	resp := post(t, ts.URL+"/v1/convert", "text/markdown", samplePaper, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(headerBatches))
	assert.Equal(t, "20", resp.Header.Get(headerPromptTokens))
	assert.Equal(t, "6", resp.Header.Get(headerCompletionTokens))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"title":"Title <T>"`)

	var paper struct {
		Title    string `json:"title"`
		Sections []struct {
			Heading     string `json:"heading"`
			Subsections []struct {
				Heading string `json:"heading"`
				Content string `json:"content"`
			} `json:"subsections"`
		} `json:"sections"`
		References []struct {
			Content string `json:"content"`
		} `json:"references"`
	}
	require.NoError(t, json.Unmarshal(raw, &paper))
	require.Len(t, paper.Sections, 1)
	assert.Equal(t, "Intro", paper.Sections[0].Heading)
	require.Len(t, paper.Sections[0].Subsections, 1)
	assert.Equal(t, "Para two.", paper.Sections[0].Subsections[0].Content)
	require.Len(t, paper.References, 1)
	assert.Equal(t, "[1] Paper A.", paper.References[0].Content)
}

func TestConvert_JSONBody(t *testing.T) {
	cls := newZoneClassifier()
	ts := newTestServer(t, cls, types.ServeConfig{})

	body, _ := json.Marshal(convertRequest{Markdown: samplePaper, Budget: 3000})
	resp := post(t, ts.URL+"/v1/convert", "application/json; charset=utf-8", string(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// At a large budget the whole paper fits in the lead batch.
	assert.Equal(t, "1", resp.Header.Get(headerBatches))
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		reply      string
		query      string
		wantStatus int
	}{
		{"unparseable reply", nil, "no json", "", http.StatusBadGateway},
		{"schema violation", nil, `{"sections": 5}`, "", http.StatusBadGateway},
		{"transport", fmt.Errorf("%w: refused", oracle.ErrTransport), "", "", http.StatusBadGateway},
		{"rate limited", &oracle.StatusError{StatusCode: http.StatusTooManyRequests}, "", "", http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, "", "", http.StatusGatewayTimeout},
		{"bad budget", nil, "", "?budget=zero", http.StatusBadRequest},
		{"bad orphan policy", nil, "", "?orphans=keep", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := newZoneClassifier()
			cls.err = tt.err
			if tt.reply != "" {
				cls.replies[chunk.ZoneLead] = tt.reply
			}
			ts := newTestServer(t, cls, types.ServeConfig{})

			resp := post(t, ts.URL+"/v1/convert"+tt.query, "text/markdown", samplePaper, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestConvert_BodyTooLarge(t *testing.T) {
	cls := newZoneClassifier()
	ts := newTestServer(t, cls, types.ServeConfig{MaxBodyBytes: 16})

	for _, path := range []string{"/v1/convert", "/v1/plan"} {
		resp := post(t, ts.URL+path, "text/markdown", samplePaper, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, path)
	}
	assert.Zero(t, cls.calls)
}

func TestAuth(t *testing.T) {
	cls := newZoneClassifier()
	ts := newTestServer(t, cls, types.ServeConfig{APIKey: "secret"})

	tests := []struct {
		name       string
		header     http.Header
		wantStatus int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", http.Header{"Authorization": {"Bearer nope"}}, http.StatusUnauthorized},
		{"valid", http.Header{"Authorization": {"Bearer secret"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+"/v1/plan", "text/markdown", samplePaper, tt.header)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestPlan(t *testing.T) {
	cls := newZoneClassifier()
	ts := newTestServer(t, cls, types.ServeConfig{})

	resp := post(t, ts.URL+"/v1/plan?budget=10", "text/markdown", samplePaper, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got planResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 10, got.Budget)
	assert.Equal(t, 4, got.Segments)
	require.Len(t, got.Batches, 2)
	assert.Equal(t, chunk.ZoneLead, got.Batches[0].Zone)
	assert.Equal(t, chunk.ZoneTrailing, got.Batches[1].Zone)
	assert.Zero(t, cls.calls, "plan never calls the oracle")
}
