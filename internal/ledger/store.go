// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records batch conversion runs in a SQLite database: one
// row per run, one row per file attempt, and an index of converted papers.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/md2json/pkg/types"
)

// DefaultPath is the ledger location used when none is configured.
const DefaultPath = ".md2json/ledger.db"

// Store manages the ledger database. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			budget INTEGER,
			workers INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS conversions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			source_path TEXT NOT NULL,
			output_path TEXT,
			status TEXT NOT NULL,
			error TEXT,
			model TEXT,
			batches INTEGER,
			prompt_tokens INTEGER,
			completion_tokens INTEGER,
			cost REAL,
			orphans INTEGER,
			duration_ms INTEGER,
			at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_run ON conversions(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_status ON conversions(status)`,
		`CREATE TABLE IF NOT EXISTS papers (
			source_path TEXT PRIMARY KEY,
			output_path TEXT NOT NULL,
			run_id TEXT REFERENCES runs(id),
			title TEXT,
			authors TEXT,
			abstract TEXT,
			keywords TEXT,
			sections INTEGER,
			refs INTEGER,
			converted_at TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun inserts a run row. Records of the run reference it.
func (s *Store) BeginRun(ctx context.Context, run types.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, provider, model, budget, workers) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), string(run.Provider), run.Model, run.Budget, run.Workers,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// Record stores one file attempt. A successful conversion also upserts the
// paper index entry for its source.
func (s *Store) Record(ctx context.Context, rec types.ConversionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversions (run_id, source_path, output_path, status, error, model, batches,
			prompt_tokens, completion_tokens, cost, orphans, duration_ms, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.SourcePath, rec.OutputPath, string(rec.Status), rec.Error, rec.Model, rec.Batches,
		rec.Usage.PromptTokens, rec.Usage.CompletionTokens, rec.Cost, rec.Orphans,
		rec.Duration.Milliseconds(), rec.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting conversion %s: %w", rec.SourcePath, err)
	}

	if rec.Status == types.ConversionDone && rec.Paper != nil {
		p := rec.Paper
		authorsJSON, _ := json.Marshal(p.Authors)
		keywordsJSON, _ := json.Marshal(p.Keywords)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO papers (source_path, output_path, run_id, title, authors, abstract, keywords, sections, refs, converted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(source_path) DO UPDATE SET
				output_path=excluded.output_path, run_id=excluded.run_id, title=excluded.title,
				authors=excluded.authors, abstract=excluded.abstract, keywords=excluded.keywords,
				sections=excluded.sections, refs=excluded.refs, converted_at=excluded.converted_at`,
			rec.SourcePath, rec.OutputPath, rec.RunID, p.Title, string(authorsJSON), p.Abstract,
			string(keywordsJSON), len(p.Sections), len(p.References), rec.At.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("upserting paper %s: %w", rec.SourcePath, err)
		}
	}

	return tx.Commit()
}

// Summary aggregates one run.
type Summary struct {
	Run       types.Run                `json:"run" yaml:"run"`
	Converted int                      `json:"converted" yaml:"converted"`
	Skipped   int                      `json:"skipped" yaml:"skipped"`
	Failed    int                      `json:"failed" yaml:"failed"`
	Usage     types.Usage              `json:"usage" yaml:"usage"`
	Cost      float64                  `json:"cost" yaml:"cost"`
	Orphans   int                      `json:"orphans" yaml:"orphans"`
	Failures  []types.ConversionRecord `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Total returns the number of files the run touched.
func (s Summary) Total() int {
	return s.Converted + s.Skipped + s.Failed
}

// ErrNoRuns is returned by Summarize when the ledger is empty.
var ErrNoRuns = errors.New("ledger has no runs")

// Summarize aggregates the run with the given id, or the most recent run
// when id is empty.
func (s *Store) Summarize(ctx context.Context, id string) (Summary, error) {
	var (
		sum       Summary
		startedAt string
		provider  sql.NullString
		model     sql.NullString
	)

	q := `SELECT id, started_at, provider, model, budget, workers FROM runs WHERE id = ?`
	args := []any{id}
	if id == "" {
		q = `SELECT id, started_at, provider, model, budget, workers FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`
		args = nil
	}
	err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&sum.Run.ID, &startedAt, &provider, &model, &sum.Run.Budget, &sum.Run.Workers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if id == "" {
				return Summary{}, ErrNoRuns
			}
			return Summary{}, fmt.Errorf("run %s not found", id)
		}
		return Summary{}, fmt.Errorf("looking up run: %w", err)
	}
	sum.Run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	sum.Run.Provider = types.Provider(provider.String)
	sum.Run.Model = model.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, count(*), coalesce(sum(prompt_tokens), 0), coalesce(sum(completion_tokens), 0),
			coalesce(sum(cost), 0), coalesce(sum(orphans), 0)
		 FROM conversions WHERE run_id = ? GROUP BY status`, sum.Run.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("aggregating run: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status     string
			n, prompt  int
			completion int
			cost       float64
			orphans    int
		)
		if err := rows.Scan(&status, &n, &prompt, &completion, &cost, &orphans); err != nil {
			return Summary{}, fmt.Errorf("scanning row: %w", err)
		}
		switch types.ConversionStatus(status) {
		case types.ConversionDone:
			sum.Converted = n
		case types.ConversionSkipped:
			sum.Skipped = n
		case types.ConversionFailed:
			sum.Failed = n
		}
		sum.Usage = sum.Usage.Add(types.Usage{PromptTokens: prompt, CompletionTokens: completion})
		sum.Cost += cost
		sum.Orphans += orphans
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	sum.Failures, err = s.conversions(ctx, sum.Run.ID, types.ConversionFailed)
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (s *Store) conversions(ctx context.Context, runID string, status types.ConversionStatus) ([]types.ConversionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_path, output_path, error, model, batches, prompt_tokens, completion_tokens, cost, duration_ms, at
		 FROM conversions WHERE run_id = ? AND status = ? ORDER BY source_path`, runID, string(status))
	if err != nil {
		return nil, fmt.Errorf("querying conversions: %w", err)
	}
	defer rows.Close()

	var out []types.ConversionRecord
	for rows.Next() {
		var (
			rec     types.ConversionRecord
			outPath sql.NullString
			errText sql.NullString
			model   sql.NullString
			ms      int64
			at      string
		)
		if err := rows.Scan(&rec.SourcePath, &outPath, &errText, &model, &rec.Batches,
			&rec.Usage.PromptTokens, &rec.Usage.CompletionTokens, &rec.Cost, &ms, &at); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rec.RunID = runID
		rec.Status = status
		rec.OutputPath = outPath.String
		rec.Error = errText.String
		rec.Model = model.String
		rec.Duration = time.Duration(ms) * time.Millisecond
		rec.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ModelTotal aggregates every recorded attempt for one model.
type ModelTotal struct {
	Model     string      `json:"model" yaml:"model"`
	Converted int         `json:"converted" yaml:"converted"`
	Failed    int         `json:"failed" yaml:"failed"`
	Usage     types.Usage `json:"usage" yaml:"usage"`
	Cost      float64     `json:"cost" yaml:"cost"`
}

// ModelTotals aggregates all runs by model, optionally restricted to one
// model. Skipped files are not counted since they made no oracle calls.
func (s *Store) ModelTotals(ctx context.Context, model string) ([]ModelTotal, error) {
	q := `SELECT coalesce(model, ''),
			sum(CASE WHEN status = ? THEN 1 ELSE 0 END),
			sum(CASE WHEN status = ? THEN 1 ELSE 0 END),
			coalesce(sum(prompt_tokens), 0), coalesce(sum(completion_tokens), 0), coalesce(sum(cost), 0)
		 FROM conversions WHERE status != ?`
	args := []any{string(types.ConversionDone), string(types.ConversionFailed), string(types.ConversionSkipped)}
	if model != "" {
		q += ` AND model = ?`
		args = append(args, model)
	}
	q += ` GROUP BY model ORDER BY model`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating models: %w", err)
	}
	defer rows.Close()

	var out []ModelTotal
	for rows.Next() {
		var m ModelTotal
		if err := rows.Scan(&m.Model, &m.Converted, &m.Failed,
			&m.Usage.PromptTokens, &m.Usage.CompletionTokens, &m.Cost); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
