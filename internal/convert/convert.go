// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns OCR Markdown papers into structured paper JSON.
// ConvertDocument runs the split, pack, classify, and merge pipeline for one
// text; ConvertAll drives it over a tree of files.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/md2json/pkg/types"
)

// markdownExt is the extension of files picked up by the batch driver.
const markdownExt = ".md"

// Recorder persists batch runs and per-file outcomes. The ledger package
// provides the SQLite implementation.
type Recorder interface {
	BeginRun(ctx context.Context, run types.Run) error
	Record(ctx context.Context, rec types.ConversionRecord) error
}

// BatchOptions carries the collaborators of a batch run. Every field is
// optional.
type BatchOptions struct {
	Recorder Recorder
	Logger   *zap.Logger
	// Out receives one progress line per file.
	Out io.Writer
}

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	RunID     string
	Converted int
	Skipped   int
	Failed    int
	Usage     types.Usage
	Cost      float64
	Duration  time.Duration
	Records   []types.ConversionRecord
}

// Total returns the total number of files processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any file failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Source is one Markdown file found by Discover. Root is the directory it
// was found under, or the file's own directory when named directly.
type Source struct {
	Path string
	Root string
}

// Discover expands roots into Markdown sources. Directories are walked
// recursively; hidden directories are skipped. The result is sorted by path
// and free of duplicates.
func Discover(roots []string) ([]Source, error) {
	var out []Source
	seen := make(map[string]bool)
	add := func(path, root string) {
		if !seen[path] {
			seen[path] = true
			out = append(out, Source{Path: path, Root: root})
		}
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("reading input %s: %w", root, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(root), filepath.Dir(root))
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.EqualFold(filepath.Ext(path), markdownExt) {
				add(path, root)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	slices.SortFunc(out, func(a, b Source) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// OutputPath returns where the JSON for src is written. With an output
// directory the source tree below Root is mirrored there; otherwise the
// JSON sits next to its source.
func OutputPath(src Source, outputDir string) string {
	name := strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path)) + ".json"
	if outputDir == "" {
		return filepath.Join(filepath.Dir(src.Path), name)
	}
	rel, err := filepath.Rel(src.Root, filepath.Dir(src.Path))
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = "."
	}
	return filepath.Join(outputDir, rel, name)
}

// ConvertFile converts one source and writes its JSON. If the output already
// exists the file is skipped without calling the oracle. A failed conversion
// writes nothing.
func ConvertFile(ctx context.Context, cls Classifier, src Source, cfg types.ConversionConfig, logger *zap.Logger) types.ConversionRecord {
	start := time.Now()
	rec := types.ConversionRecord{
		SourcePath: src.Path,
		OutputPath: OutputPath(src, cfg.OutputDir),
		Model:      cfg.Model,
		At:         start.UTC(),
	}
	finish := func(status types.ConversionStatus, err error) types.ConversionRecord {
		rec.Status = status
		if err != nil {
			rec.Error = err.Error()
		}
		rec.Duration = time.Since(start)
		return rec
	}

	if _, err := os.Stat(rec.OutputPath); err == nil {
		return finish(types.ConversionSkipped, nil)
	}

	raw, err := os.ReadFile(src.Path)
	if err != nil {
		return finish(types.ConversionFailed, fmt.Errorf("reading source: %w", err))
	}

	body := stripFrontmatter(string(raw))
	out, err := ConvertDocument(ctx, cls, body, Options{
		Budget:       cfg.Budget,
		Normalize:    cfg.Normalize,
		OrphanPolicy: cfg.OrphanPolicy,
		Logger:       logger.With(zap.String("source", src.Path)),
	})
	rec.Batches = out.Batches
	rec.Usage = out.Usage
	rec.Orphans = out.Merge.Orphans
	if price, ok := cfg.PriceFor(cfg.Model); ok {
		rec.Cost = out.Usage.Cost(price)
	}
	if err != nil {
		return finish(types.ConversionFailed, err)
	}

	if err := WriteJSON(rec.OutputPath, out.Paper); err != nil {
		return finish(types.ConversionFailed, err)
	}
	paper := out.Paper
	rec.Paper = &paper
	return finish(types.ConversionDone, nil)
}

// ConvertAll converts every Markdown file under sources, or under
// cfg.InputDir when sources is empty. Up to cfg.Workers documents are in
// flight at once; batches within a document stay sequential. A failing file
// never stops the others.
func ConvertAll(ctx context.Context, cls Classifier, cfg types.ConversionConfig, sources []string, opts BatchOptions) (BatchResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	w := opts.Out
	if w == nil {
		w = io.Discard
	}
	if len(sources) == 0 {
		if cfg.InputDir == "" {
			return BatchResult{}, errors.New("no input given and input_dir is not set")
		}
		sources = []string{cfg.InputDir}
	}

	files, err := Discover(sources)
	if err != nil {
		return BatchResult{}, err
	}

	start := time.Now()
	result := BatchResult{RunID: uuid.NewString()}
	if _, ok := cfg.PriceFor(cfg.Model); !ok {
		logger.Debug("no pricing for model, cost reported as zero", zap.String("model", cfg.Model))
	}

	if opts.Recorder != nil {
		run := types.Run{
			ID:        result.RunID,
			StartedAt: start.UTC(),
			Provider:  cfg.Provider,
			Model:     cfg.Model,
			Budget:    cfg.Budget,
			Workers:   cfg.Workers,
		}
		if err := opts.Recorder.BeginRun(ctx, run); err != nil {
			logger.Warn("ledger unavailable", zap.Error(err))
			opts.Recorder = nil
		}
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	records := make([]types.ConversionRecord, len(files))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)

	for i, src := range files {
		g.Go(func() error {
			rec := ConvertFile(ctx, cls, src, cfg, logger)
			rec.RunID = result.RunID
			records[i] = rec

			mu.Lock()
			defer mu.Unlock()
			progress(w, rec)
			if opts.Recorder != nil {
				if err := opts.Recorder.Record(ctx, rec); err != nil {
					logger.Warn("recording conversion", zap.String("source", rec.SourcePath), zap.Error(err))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, rec := range records {
		switch rec.Status {
		case types.ConversionDone:
			result.Converted++
		case types.ConversionSkipped:
			result.Skipped++
		case types.ConversionFailed:
			result.Failed++
		}
		result.Usage = result.Usage.Add(rec.Usage)
		result.Cost += rec.Cost
	}
	result.Records = records
	result.Duration = time.Since(start)

	logger.Info("batch finished",
		zap.String("run_id", result.RunID),
		zap.Int("converted", result.Converted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("tokens", result.Usage.Total()),
		zap.Float64("cost_usd", result.Cost),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func progress(w io.Writer, rec types.ConversionRecord) {
	switch rec.Status {
	case types.ConversionSkipped:
		fmt.Fprintf(w, "skipped: %s (already exists)\n", rec.SourcePath)
	case types.ConversionFailed:
		fmt.Fprintf(w, "failed:  %s (%s)\n", rec.SourcePath, rec.Error)
	default:
		fmt.Fprintf(w, "converted: %s (%d batches, %d tokens, $%.4f, %s)\n",
			rec.SourcePath, rec.Batches, rec.Usage.Total(), rec.Cost, rec.Duration.Round(time.Millisecond))
	}
}

// stripFrontmatter removes a leading YAML frontmatter block, as written by
// PDF-to-Markdown converters, so it does not reach the lead batch.
func stripFrontmatter(text string) string {
	const fence = "---\n"
	if !strings.HasPrefix(text, fence) {
		return text
	}
	end := strings.Index(text[len(fence):], "\n"+fence)
	if end < 0 {
		return text
	}
	return strings.TrimLeft(text[len(fence)+end+len(fence)+1:], "\n")
}
