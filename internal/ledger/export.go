// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// PaperEntry is one converted paper in the index.
type PaperEntry struct {
	SourcePath  string    `json:"source_path" yaml:"source_path"`
	OutputPath  string    `json:"output_path" yaml:"output_path"`
	RunID       string    `json:"run_id" yaml:"run_id"`
	Title       string    `json:"title" yaml:"title"`
	Authors     []string  `json:"authors" yaml:"authors"`
	Abstract    string    `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Keywords    []string  `json:"keywords" yaml:"keywords"`
	Sections    int       `json:"sections" yaml:"sections"`
	References  int       `json:"references" yaml:"references"`
	ConvertedAt time.Time `json:"converted_at" yaml:"converted_at"`
}

// QueryOptions filters the paper index.
type QueryOptions struct {
	// Title matches papers whose title contains it, case-insensitively.
	Title string

	// RunID restricts results to papers last converted by one run.
	RunID string

	// MaxResults limits the result count. Zero means no limit.
	MaxResults int
}

// Papers lists indexed papers ordered by source path.
func (s *Store) Papers(ctx context.Context, opts QueryOptions) ([]PaperEntry, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT source_path, output_path, run_id, title, authors, abstract, keywords, sections, refs, converted_at
		 FROM papers WHERE 1=1`)

	if opts.Title != "" {
		qb.WriteString(` AND lower(title) LIKE ?`)
		args = append(args, "%"+strings.ToLower(opts.Title)+"%")
	}
	if opts.RunID != "" {
		qb.WriteString(` AND run_id = ?`)
		args = append(args, opts.RunID)
	}
	qb.WriteString(` ORDER BY source_path`)
	if opts.MaxResults > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, opts.MaxResults)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var out []PaperEntry
	for rows.Next() {
		var (
			e            PaperEntry
			runID        sql.NullString
			title        sql.NullString
			authorsJSON  sql.NullString
			abstract     sql.NullString
			keywordsJSON sql.NullString
			at           sql.NullString
		)
		if err := rows.Scan(&e.SourcePath, &e.OutputPath, &runID, &title, &authorsJSON, &abstract,
			&keywordsJSON, &e.Sections, &e.References, &at); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.RunID = runID.String
		e.Title = title.String
		e.Abstract = abstract.String
		if authorsJSON.Valid {
			json.Unmarshal([]byte(authorsJSON.String), &e.Authors)
		}
		if keywordsJSON.Valid {
			json.Unmarshal([]byte(keywordsJSON.String), &e.Keywords)
		}
		if e.Authors == nil {
			e.Authors = []string{}
		}
		if e.Keywords == nil {
			e.Keywords = []string{}
		}
		e.ConvertedAt, _ = time.Parse(time.RFC3339Nano, at.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExportYAML writes the filtered paper index to w as YAML.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer, opts QueryOptions) error {
	entries, err := s.Papers(ctx, opts)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []PaperEntry{}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}

// ExportJSON writes the filtered paper index to w as JSON.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer, opts QueryOptions) error {
	entries, err := s.Papers(ctx, opts)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []PaperEntry{}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}
