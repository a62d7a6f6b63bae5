// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/md2json/internal/convert"
	"github.com/pdiddy/md2json/internal/ledger"
)

var (
	// titleStyle for box headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// dimStyle for labels
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// boxStyle for summary boxes
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// printBatchSummary renders the totals of a convert run.
func printBatchSummary(w io.Writer, r convert.BatchResult) {
	status := successStyle.Render("OK")
	if r.HasFailures() {
		status = errorStyle.Render(fmt.Sprintf("%d FAILED", r.Failed))
	}

	line1 := fmt.Sprintf("%s %d  %s %d  %s %d  %s %d  %s",
		dimStyle.Render("Converted:"), r.Converted,
		dimStyle.Render("Skipped:"), r.Skipped,
		dimStyle.Render("Failed:"), r.Failed,
		dimStyle.Render("Total:"), r.Total(),
		status,
	)
	line2 := fmt.Sprintf("%s %s in %s %s out  %s $%.4f  %s %s",
		dimStyle.Render("Tokens:"), formatNumber(r.Usage.PromptTokens),
		dimStyle.Render("->"), formatNumber(r.Usage.CompletionTokens),
		dimStyle.Render("Cost:"), r.Cost,
		dimStyle.Render("Duration:"), r.Duration.Round(time.Millisecond),
	)

	content := titleStyle.Render("Batch summary") + "\n" + line1 + "\n" + line2 + "\n" +
		dimStyle.Render("Run: "+r.RunID)
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxStyle.Render(content))
}

// printRunSummary renders a ledger summary of one run.
func printRunSummary(w io.Writer, s ledger.Summary) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Run "+s.Run.ID) + "\n")
	fmt.Fprintf(&b, "%s %s  %s %s (%s)  %s %d\n",
		dimStyle.Render("Started:"), s.Run.StartedAt.Local().Format(time.DateTime),
		dimStyle.Render("Model:"), s.Run.Model, s.Run.Provider,
		dimStyle.Render("Budget:"), s.Run.Budget)
	fmt.Fprintf(&b, "%s %d  %s %d  %s %d  %s %d\n",
		dimStyle.Render("Converted:"), s.Converted,
		dimStyle.Render("Skipped:"), s.Skipped,
		dimStyle.Render("Failed:"), s.Failed,
		dimStyle.Render("Orphans:"), s.Orphans)
	fmt.Fprintf(&b, "%s %s in %s %s out  %s $%.4f",
		dimStyle.Render("Tokens:"), formatNumber(s.Usage.PromptTokens),
		dimStyle.Render("->"), formatNumber(s.Usage.CompletionTokens),
		dimStyle.Render("Cost:"), s.Cost)

	for _, f := range s.Failures {
		fmt.Fprintf(&b, "\n%s %s: %s", errorStyle.Render("failed"), f.SourcePath, f.Error)
	}
	fmt.Fprintln(w, boxStyle.Render(b.String()))
}

// printModelTotals renders per-model totals as aligned rows.
func printModelTotals(w io.Writer, totals []ledger.ModelTotal) {
	if len(totals) == 0 {
		return
	}
	rows := []string{titleStyle.Render("By model")}
	for _, m := range totals {
		rows = append(rows, fmt.Sprintf("%-28s %s %-5d %s %-4d %s %-12s %s $%.4f",
			m.Model,
			dimStyle.Render("converted"), m.Converted,
			dimStyle.Render("failed"), m.Failed,
			dimStyle.Render("tokens"), formatNumber(m.Usage.Total()),
			dimStyle.Render("cost"), m.Cost))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(rows, "\n")))
}

// printPlan lists the batches of a dry run.
func printPlan(w io.Writer, budget, segments int, infos []convert.BatchInfo) {
	fmt.Fprintf(w, "%s %d segments, %d batches, budget %d\n",
		titleStyle.Render("Plan:"), segments, len(infos), budget)
	for _, b := range infos {
		tokens := fmt.Sprintf("%5d", b.Tokens)
		if b.Tokens > budget {
			tokens = errorStyle.Render(tokens)
		}
		fmt.Fprintf(w, "  %-8s #%-3d %s tok  %2d seg  %s\n",
			b.Zone, b.Ordinal, tokens, b.Segments, dimStyle.Render(b.Preview))
	}
}

// formatNumber adds thousands separators.
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}
