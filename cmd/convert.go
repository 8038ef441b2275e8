package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <file|->",
	Short: "Print a quick HTML preview of a document without calling the model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadInput(args[0])
		if err != nil {
			return err
		}
		preview, err := doc.HTML()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), preview)
		return nil
	},
}
