// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/md2json/internal/chunk"
	"github.com/pdiddy/md2json/internal/convert"
	"github.com/pdiddy/md2json/internal/render"
)

var planCmd = &cobra.Command{
	Use:   "plan <file.md>",
	Short: "Show how a file would be split and packed, without calling the oracle",
	Long: `Plan splits a Markdown file at level-1 and level-2 headings, packs the
segments into lead, middle, and trailing batches under the token budget, and
prints one line per batch. No oracle call is made.

With --outline the full heading outline of the source is printed as well,
including headings deeper than level 2 that do not start a segment.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

// planOutput is the structured form of a plan.
type planOutput struct {
	Source   string              `json:"source" yaml:"source"`
	Budget   int                 `json:"budget" yaml:"budget"`
	Segments int                 `json:"segments" yaml:"segments"`
	Batches  []convert.BatchInfo `json:"batches" yaml:"batches"`
	Outline  []render.Heading    `json:"outline,omitempty" yaml:"outline,omitempty"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{"budget": "budget", "normalize": "normalize"}); err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	withOutline, _ := cmd.Flags().GetBool("outline")

	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	opts := convert.Options{Budget: viper.GetInt("budget"), Normalize: viper.GetBool("normalize")}
	plan := convert.Plan(string(src), opts)
	segments := len(plan.Lead.Segments) + len(plan.Tail)
	for _, b := range plan.Middle {
		segments += len(b.Segments)
	}

	out := planOutput{Source: args[0], Budget: plan.Budget, Segments: segments, Batches: convert.Describe(plan)}
	if withOutline {
		out.Outline = render.Headings(src)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		printPlan(os.Stdout, out.Budget, out.Segments, out.Batches)
		if withOutline {
			fmt.Println()
			for _, h := range out.Outline {
				fmt.Printf("%s%s\n", strings.Repeat("  ", h.Level-1), h.Text)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json, or yaml)", format)
	}
}

func init() {
	planCmd.Flags().Int("budget", chunk.DefaultBudget, "token budget of one batch")
	planCmd.Flags().Bool("normalize", false, "apply NFKC normalization before splitting")
	planCmd.Flags().String("format", "text", "output format: text, json, or yaml")
	planCmd.Flags().Bool("outline", false, "also print the source heading outline")

	rootCmd.AddCommand(planCmd)
}
