// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/md2json/internal/ledger"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize conversion runs from the ledger",
	Long: `Report reads the conversion ledger and prints a summary of the most
recent run (or --run ID): files converted, skipped, and failed, tokens used,
and cost, followed by totals per model across all runs.

With --papers the index of converted papers is exported instead, filtered by
--title.`,
	RunE: runReport,
}

// reportOutput is the structured form of a report.
type reportOutput struct {
	Run    ledger.Summary      `json:"run" yaml:"run"`
	Models []ledger.ModelTotal `json:"models" yaml:"models"`
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{"ledger": "ledger_path", "input-dir": "input_dir"}); err != nil {
		return err
	}
	cfg, err := conversionConfig()
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	runID, _ := cmd.Flags().GetString("run")
	model, _ := cmd.Flags().GetString("model")
	papers, _ := cmd.Flags().GetBool("papers")
	title, _ := cmd.Flags().GetString("title")

	path := ledgerPath(cfg)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no ledger at %s (run convert first or pass --ledger)", path)
	}
	store, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := cmd.Context()

	if papers {
		opts := ledger.QueryOptions{Title: title, RunID: runID}
		if format == "yaml" {
			return store.ExportYAML(ctx, os.Stdout, opts)
		}
		return store.ExportJSON(ctx, os.Stdout, opts)
	}

	sum, err := store.Summarize(ctx, runID)
	if err != nil {
		if errors.Is(err, ledger.ErrNoRuns) {
			fmt.Fprintln(os.Stderr, "ledger has no runs yet")
			return nil
		}
		return err
	}
	totals, err := store.ModelTotals(ctx, model)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(reportOutput{Run: sum, Models: totals})
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(reportOutput{Run: sum, Models: totals}); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		printRunSummary(os.Stdout, sum)
		printModelTotals(os.Stdout, totals)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table, json, or yaml)", format)
	}
}

func init() {
	reportCmd.Flags().String("ledger", "", "ledger database path (default <input-dir>/"+ledger.DefaultPath+")")
	reportCmd.Flags().String("input-dir", "", "input directory whose ledger to read")
	reportCmd.Flags().String("format", "table", "output format: table, json, or yaml")
	reportCmd.Flags().String("run", "", "run ID to summarize (default: most recent)")
	reportCmd.Flags().String("model", "", "restrict per-model totals to this model")
	reportCmd.Flags().Bool("papers", false, "export the converted paper index (json or yaml)")
	reportCmd.Flags().String("title", "", "with --papers, only papers whose title contains this")

	rootCmd.AddCommand(reportCmd)
}
