// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/md2json/internal/convert"
	"github.com/pdiddy/md2json/internal/ledger"
)

var convertCmd = &cobra.Command{
	Use:   "convert [dirs|files...]",
	Short: "Convert OCR Markdown files to structured paper JSON",
	Long: `Convert finds every .md file under the given directories (or --input-dir)
and writes a .json paper next to it, or under --output-dir mirroring the input
tree. Files whose JSON already exists are skipped, so an interrupted batch can
be resumed by running the same command again.

Each file's batches are sent to the oracle one at a time, in order. With
--workers N, up to N files are converted concurrently. Token usage, cost,
and per-file outcomes are recorded in a SQLite ledger unless --no-ledger is
given.`,
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	keys := map[string]string{
		"input-dir":  "input_dir",
		"output-dir": "output_dir",
		"workers":    "workers",
		"ledger":     "ledger_path",
	}
	for k, v := range oracleKeys {
		keys[k] = v
	}
	if err := bindFlags(cmd, keys); err != nil {
		return err
	}

	cfg, err := conversionConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 && cfg.InputDir == "" {
		return fmt.Errorf("no input: pass directories or files, or set --input-dir")
	}

	cls, err := newClassifier(&cfg)
	if err != nil {
		return err
	}

	opts := convert.BatchOptions{Logger: logger, Out: os.Stdout}
	if noLedger, _ := cmd.Flags().GetBool("no-ledger"); !noLedger {
		store, err := ledger.Open(ledgerPath(cfg))
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Recorder = store
		logger.Debug("ledger open", zap.String("path", store.Path()))
	}

	fmt.Fprintf(os.Stderr, "Converting with %s (%s), budget %d, %d worker(s)\n",
		cfg.Model, cfg.Provider, cfg.Budget, max(cfg.Workers, 1))

	result, err := convert.ConvertAll(cmd.Context(), cls, cfg, args, opts)
	if err != nil {
		return err
	}
	printBatchSummary(os.Stdout, result)

	if result.HasFailures() {
		return fmt.Errorf("%d file(s) failed conversion", result.Failed)
	}
	return nil
}

func init() {
	oracleFlags(convertCmd)
	convertCmd.Flags().String("input-dir", "", "directory searched recursively for .md files")
	convertCmd.Flags().String("output-dir", "", "mirror the input tree here instead of writing JSON next to each source")
	convertCmd.Flags().Int("workers", 1, "number of files converted concurrently")
	convertCmd.Flags().String("ledger", "", "ledger database path (default <input-dir>/"+ledger.DefaultPath+")")
	convertCmd.Flags().Bool("no-ledger", false, "do not record the run in the ledger")

	rootCmd.AddCommand(convertCmd)
}
