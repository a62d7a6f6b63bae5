// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pdiddy/md2json/internal/convert"
	"github.com/pdiddy/md2json/internal/oracle"
	"github.com/pdiddy/md2json/pkg/types"
)

// convertRequest is the JSON form of a conversion request. A request with
// any other content type carries the Markdown as its raw body.
type convertRequest struct {
	Markdown     string             `json:"markdown"`
	Budget       int                `json:"budget,omitempty"`
	Normalize    *bool              `json:"normalize,omitempty"`
	OrphanPolicy types.OrphanPolicy `json:"orphan_policy,omitempty"`
}

// planResponse is the body of a /v1/plan reply.
type planResponse struct {
	Budget   int                 `json:"budget"`
	Segments int                 `json:"segments"`
	Batches  []convert.BatchInfo `json:"batches"`
}

// Response headers carrying conversion statistics.
const (
	headerBatches          = "X-Md2json-Batches"
	headerPromptTokens     = "X-Md2json-Prompt-Tokens"
	headerCompletionTokens = "X-Md2json-Completion-Tokens"
	headerOrphans          = "X-Md2json-Orphans"
)

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	text, opts, err := s.readRequest(w, r)
	if err != nil {
		writeError(w, requestStatus(err), err.Error())
		return
	}
	opts.Logger = s.log.With(zap.String("request_id", middleware.GetReqID(r.Context())))

	out, err := convert.ConvertDocument(r.Context(), s.cls, text, opts)
	if err != nil {
		status := statusFor(err)
		s.log.Warn("conversion failed", zap.Int("status", status), zap.Int("batches", out.Batches), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	h := w.Header()
	h.Set(headerBatches, strconv.Itoa(out.Batches))
	h.Set(headerPromptTokens, strconv.Itoa(out.Usage.PromptTokens))
	h.Set(headerCompletionTokens, strconv.Itoa(out.Usage.CompletionTokens))
	h.Set(headerOrphans, strconv.Itoa(out.Merge.Orphans))
	writeJSON(w, http.StatusOK, out.Paper)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	text, opts, err := s.readRequest(w, r)
	if err != nil {
		writeError(w, requestStatus(err), err.Error())
		return
	}

	plan := convert.Plan(text, opts)
	segments := len(plan.Lead.Segments) + len(plan.Tail)
	for _, b := range plan.Middle {
		segments += len(b.Segments)
	}
	writeJSON(w, http.StatusOK, planResponse{
		Budget:   plan.Budget,
		Segments: segments,
		Batches:  convert.Describe(plan),
	})
}

// readRequest decodes the Markdown and the per-request options. Query
// parameters budget, normalize, and orphans override the server defaults
// for raw bodies; JSON bodies carry the same fields.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (string, convert.Options, error) {
	opts := convert.Options{
		Budget:       s.conv.Budget,
		Normalize:    s.conv.Normalize,
		OrphanPolicy: s.conv.OrphanPolicy,
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		return "", opts, fmt.Errorf("reading body: %w", err)
	}

	q := r.URL.Query()
	if v := q.Get("budget"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return "", opts, fmt.Errorf("invalid budget %q", v)
		}
		opts.Budget = n
	}
	if v := q.Get("normalize"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return "", opts, fmt.Errorf("invalid normalize %q", v)
		}
		opts.Normalize = b
	}
	if v := q.Get("orphans"); v != "" {
		opts.OrphanPolicy = types.OrphanPolicy(v)
	}

	text := string(body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req convertRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", opts, fmt.Errorf("decoding request: %w", err)
		}
		text = req.Markdown
		if req.Budget > 0 {
			opts.Budget = req.Budget
		}
		if req.Normalize != nil {
			opts.Normalize = *req.Normalize
		}
		if req.OrphanPolicy != "" {
			opts.OrphanPolicy = req.OrphanPolicy
		}
	}

	switch opts.OrphanPolicy {
	case "", types.OrphanAttach, types.OrphanDrop:
	default:
		return "", opts, fmt.Errorf("invalid orphan policy %q", opts.OrphanPolicy)
	}
	return text, opts, nil
}

// requestStatus maps a request decoding error to an HTTP status.
func requestStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	var se *oracle.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests:
		return http.StatusServiceUnavailable
	case errors.Is(err, oracle.ErrParse), errors.Is(err, oracle.ErrSchema), errors.Is(err, oracle.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
