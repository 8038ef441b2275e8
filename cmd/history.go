package cmd

import (
	"fmt"

	"github.com/arin/doc2html/internal/history"
	"github.com/arin/doc2html/internal/ui"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent generation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := history.Load(historyLimit)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}

		cyan := color.New(color.FgCyan)
		dim := color.New(color.FgHiBlack)
		red := color.New(color.FgRed)
		green := color.New(color.FgGreen)
		yellow := color.New(color.FgYellow)

		for i, e := range entries {
			dim.Printf("[%s] ", e.Timestamp.Format("2006-01-02 15:04:05"))
			fmt.Printf("%s ", e.Source)
			switch {
			case !e.Success:
				red.Printf("✗ %s\n", e.Error)
			case !e.Complete:
				cyan.Printf("→ %s ", e.Output)
				yellow.Printf("! incomplete after %d attempts\n", e.Attempts)
			default:
				cyan.Printf("→ %s ", e.Output)
				green.Println("✓")
			}
			if e.Success {
				dim.Printf("  %s, %s, %d attempt%s\n", e.Model, ui.FormatBytes(e.Bytes), e.Attempts, plural(e.Attempts))
			}
			if i < len(entries)-1 {
				fmt.Println()
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of history entries to show")
}
