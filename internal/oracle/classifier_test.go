// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/md2json/internal/chunk"
	"github.com/pdiddy/md2json/internal/outline"
	"github.com/pdiddy/md2json/pkg/types"
)

// stubOracle records requests and replies with a fixed completion.
type stubOracle struct {
	reply    string
	usage    types.Usage
	err      error
	requests []Request
}

func (s *stubOracle) Complete(_ context.Context, req Request) (Completion, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return Completion{}, s.err
	}
	return Completion{Text: s.reply, Usage: s.usage}, nil
}

func TestClassify_PromptCarriesOutline(t *testing.T) {
	stub := &stubOracle{reply: `{"sections": []}`, usage: types.Usage{PromptTokens: 10, CompletionTokens: 2}}
	c := NewClassifier(stub, nil)

	tr := outline.Update(outline.Tracker{}, []types.Section{{Kind: types.KindHeading, Heading: "Method", Content: "secret body"}})
	batch := chunk.Batch{Zone: chunk.ZoneMiddle, Text: "## Training\nWe train."}

	res, usage, err := c.Classify(context.Background(), batch, tr)
	require.NoError(t, err)
	assert.Equal(t, chunk.ZoneMiddle, res.Zone())
	assert.Equal(t, types.Usage{PromptTokens: 10, CompletionTokens: 2}, usage)

	require.Len(t, stub.requests, 1)
	req := stub.requests[0]
	assert.Equal(t, batch.Text, req.User)
	assert.Contains(t, req.System, `"heading":"Method"`)
	assert.NotContains(t, req.System, "secret body")
}

func TestClassify_LeadPromptHasSchema(t *testing.T) {
	stub := &stubOracle{reply: `{"title": "T"}`}
	c := NewClassifier(stub, nil)

	res, _, err := c.Classify(context.Background(), chunk.Batch{Zone: chunk.ZoneLead, Text: "# T"}, outline.Tracker{})
	require.NoError(t, err)
	assert.Equal(t, "T", res.(*LeadResult).Title)

	sys := stub.requests[0].System
	for _, key := range []string{"title", "authors", "abstract", "keywords", "sections"} {
		assert.Contains(t, sys, key)
	}
}

func TestClassify_TrailingPromptAsksForReferences(t *testing.T) {
	stub := &stubOracle{reply: `{"references": ["[1] A."]}`}
	c := NewClassifier(stub, nil)

	res, _, err := c.Classify(context.Background(), chunk.Batch{Zone: chunk.ZoneTrailing, Text: "# Refs"}, outline.Tracker{})
	require.NoError(t, err)
	assert.Len(t, res.(*TrailingResult).References, 1)
	assert.Contains(t, stub.requests[0].System, "paper_name")
}

func TestClassify_ParseFailureKeepsUsage(t *testing.T) {
	stub := &stubOracle{reply: "no json here", usage: types.Usage{PromptTokens: 5, CompletionTokens: 3}}
	c := NewClassifier(stub, nil)

	_, usage, err := c.Classify(context.Background(), chunk.Batch{Zone: chunk.ZoneMiddle, Text: "x"}, outline.Tracker{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.Equal(t, 8, usage.Total())
	assert.Len(t, stub.requests, 1)
}

func TestClassify_TransportError(t *testing.T) {
	stub := &stubOracle{err: errors.New("connection refused")}
	c := NewClassifier(stub, nil)

	_, _, err := c.Classify(context.Background(), chunk.Batch{Zone: chunk.ZoneLead, Text: "x"}, outline.Tracker{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClaudeBackend(t *testing.T) {
	var got claudeRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"content": [{"type": "text", "text": "{\"sections\": []}"}], "usage": {"input_tokens": 12, "output_tokens": 4}}`)
	}))
	defer ts.Close()

	b := NewClaudeBackend(types.OracleConfig{APIKey: "test-key", Model: "claude-test", Timeout: time.Second})
	b.URL = ts.URL

	comp, err := b.Complete(context.Background(), Request{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, `{"sections": []}`, comp.Text)
	assert.Equal(t, types.Usage{PromptTokens: 12, CompletionTokens: 4}, comp.Usage)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "usr", got.Messages[0].Content)
}

func TestClaudeBackend_StatusError(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": "slow down"}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	b := NewClaudeBackend(types.OracleConfig{APIKey: "k", Model: "m"})
	_, err := b.Complete(context.Background(), Request{User: "u"})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIBackend(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen-test", body["model"])
		msgs, _ := body["messages"].([]any)
		assert.Len(t, msgs, 2)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 0, "model": "qwen-test",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"title\": \"T\"}"}}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 7, "total_tokens": 27}
		}`)
	}))
	defer ts.Close()

	b := NewOpenAIBackend(types.OracleConfig{APIKey: "test-key", Model: "qwen-test", BaseURL: ts.URL + "/v1/", Timeout: 5 * time.Second, MaxTokens: 100})
	comp, err := b.Complete(context.Background(), Request{System: "sys", User: "usr"})
	require.NoError(t, err)

	assert.Equal(t, `{"title": "T"}`, comp.Text)
	assert.Equal(t, types.Usage{PromptTokens: 20, CompletionTokens: 7}, comp.Usage)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIBackend_ServerErrorIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error": {"message": "boom", "type": "server_error"}}`)
	}))
	defer ts.Close()

	b := NewOpenAIBackend(types.OracleConfig{APIKey: "k", Model: "m", BaseURL: ts.URL + "/v1/"})
	_, err := b.Complete(context.Background(), Request{User: "u"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNew(t *testing.T) {
	o, err := New(types.OracleConfig{Provider: types.ProviderOpenAI, APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIBackend{}, o)

	o, err = New(types.OracleConfig{Provider: types.ProviderAnthropic, APIKey: "k"}, nil)
	require.NoError(t, err)
	cb, ok := o.(*ClaudeBackend)
	require.True(t, ok)
	assert.Equal(t, DefaultClaudeModel, cb.Model)

	_, err = New(types.OracleConfig{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
