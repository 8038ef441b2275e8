package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/arin/doc2html/internal/stats"
	"github.com/arin/doc2html/internal/ui"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show generation statistics",
	Long: `Display a dashboard of your d2h usage: run counts, success and
completion rates, generation times, attempts per page, and the models and
input formats you use most.

Data is collected automatically and stored locally in ~/.doc2html/stats.json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := stats.Summarize()
		if err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}

		cyan := color.New(color.FgCyan, color.Bold)
		green := color.New(color.FgGreen)
		yellow := color.New(color.FgYellow)
		dim := color.New(color.FgHiBlack)

		cyan.Fprintf(os.Stderr, "\n  📊 d2h stats\n\n")

		if summary.TotalRuns == 0 {
			dim.Fprintln(os.Stderr, "  No data yet. Generate a few pages and come back.")
			fmt.Fprintln(os.Stderr)
			return nil
		}

		// Overview
		green.Fprintf(os.Stderr, "  Runs:      ")
		fmt.Fprintf(os.Stderr, "%d total", summary.TotalRuns)
		dim.Fprintf(os.Stderr, "  (%d today, %d this week)\n", summary.TodayCount, summary.ThisWeekCount)

		green.Fprintf(os.Stderr, "  Success:   ")
		rate(summary.SuccessRate, yellow)
		green.Fprintf(os.Stderr, "  Complete:  ")
		rate(summary.CompleteRate, yellow)

		green.Fprintf(os.Stderr, "  Time:      ")
		fmt.Fprintf(os.Stderr, "%.1fs avg\n", float64(summary.AvgLatencyMs)/1000)
		green.Fprintf(os.Stderr, "  Attempts:  ")
		fmt.Fprintf(os.Stderr, "%.1f avg\n", summary.AvgAttempts)
		green.Fprintf(os.Stderr, "  Size:      ")
		fmt.Fprintf(os.Stderr, "%s avg\n", ui.FormatBytes(summary.AvgBytes))

		if len(summary.FormatBreakdown) > 0 {
			fmt.Fprintln(os.Stderr)
			cyan.Fprintln(os.Stderr, "  Input Formats")
			for _, format := range sortedKeys(summary.FormatBreakdown) {
				count := summary.FormatBreakdown[format]
				pct := float64(count) / float64(summary.TotalRuns) * 100
				bar := strings.Repeat("█", int(pct/5))
				dim.Fprintf(os.Stderr, "  %-10s ", format)
				fmt.Fprintf(os.Stderr, "%s %d (%.0f%%)\n", bar, count, pct)
			}
		}

		if len(summary.SubcmdBreakdown) > 0 {
			fmt.Fprintln(os.Stderr)
			cyan.Fprintln(os.Stderr, "  Subcommands")
			for _, sub := range sortedKeys(summary.SubcmdBreakdown) {
				dim.Fprintf(os.Stderr, "  %-14s ", sub)
				fmt.Fprintf(os.Stderr, "%d\n", summary.SubcmdBreakdown[sub])
			}
		}

		if len(summary.TopModels) > 0 {
			fmt.Fprintln(os.Stderr)
			cyan.Fprintln(os.Stderr, "  Top Models")
			for i, mc := range summary.TopModels {
				dim.Fprintf(os.Stderr, "  %d. ", i+1)
				fmt.Fprintf(os.Stderr, "%s ", mc.Model)
				dim.Fprintf(os.Stderr, "(%dx)\n", mc.Count)
			}
		}

		fmt.Fprintln(os.Stderr)
		return nil
	},
}

func rate(pct float64, warn *color.Color) {
	if pct >= 90 {
		fmt.Fprintf(os.Stderr, "%.0f%%\n", pct)
	} else {
		warn.Fprintf(os.Stderr, "%.0f%%\n", pct)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
