// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/md2json/internal/render"
	"github.com/pdiddy/md2json/pkg/types"
)

var renderCmd = &cobra.Command{
	Use:   "render <paper.json>",
	Short: "Render a converted paper as Markdown or HTML for review",
	Long: `Render reads a paper JSON file written by convert and prints it as
clean Markdown: title, metadata, abstract, the section tree at its nesting
depth, and a numbered reference list. With --html the Markdown is rendered to
an HTML fragment.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	asHTML, _ := cmd.Flags().GetBool("html")
	outPath, _ := cmd.Flags().GetString("output")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	var paper types.PaperMetadata
	if err := json.Unmarshal(data, &paper); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outPath, err)
		}
		defer f.Close()
		w = f
	}

	if asHTML {
		return render.HTML(w, paper)
	}
	_, err = io.WriteString(w, render.Markdown(paper))
	return err
}

func init() {
	renderCmd.Flags().Bool("html", false, "render HTML instead of Markdown")
	renderCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	rootCmd.AddCommand(renderCmd)
}
