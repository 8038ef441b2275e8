package cmd

import (
	"fmt"

	"github.com/arin/doc2html/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage doc2html configuration",
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key <api-key>",
	Short: "Set the API key for the generation endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetAPIKey(args[0]); err != nil {
			return fmt.Errorf("failed to save API key: %w", err)
		}
		fmt.Println("API key saved successfully.")
		return nil
	},
}

var setModelCmd = &cobra.Command{
	Use:   "set-model <model-name>",
	Short: "Set the model (default: " + config.DefaultModel + ")",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetModel(args[0]); err != nil {
			return fmt.Errorf("failed to save model: %w", err)
		}
		fmt.Printf("Model set to %s.\n", args[0])
		return nil
	},
}

var setEndpointCmd = &cobra.Command{
	Use:   "set-endpoint <url>",
	Short: "Set the chat completions URL (default: " + config.DefaultEndpoint + ")",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetEndpoint(args[0]); err != nil {
			return fmt.Errorf("failed to save endpoint: %w", err)
		}
		fmt.Printf("Endpoint set to %s.\n", args[0])
		return nil
	},
}

var setTemplateCmd = &cobra.Command{
	Use:   "set-template <path|url|\"\">",
	Short: "Set where the prompt template is read from (empty for the built-in one)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetTemplate(args[0]); err != nil {
			return fmt.Errorf("failed to save template: %w", err)
		}
		if args[0] == "" {
			fmt.Println("Using the built-in template.")
		} else {
			fmt.Printf("Template set to %s.\n", args[0])
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		template := cfg.Template
		if template == "" {
			template = "(built-in)"
		}
		fmt.Printf("Model:      %s\n", cfg.Model)
		fmt.Printf("Endpoint:   %s\n", cfg.Endpoint)
		fmt.Printf("API Key:    %s\n", cfg.MaskedKey())
		fmt.Printf("Template:   %s\n", template)
		fmt.Printf("Strict:     %t\n", cfg.Strict)
		fmt.Printf("Output Dir: %s\n", cfg.OutputDir)
		fmt.Printf("Server:     %s\n", cfg.ServerAddr)
		fmt.Printf("Config Dir: %s\n", config.Dir())
		return nil
	},
}

func init() {
	configCmd.AddCommand(setKeyCmd)
	configCmd.AddCommand(setModelCmd)
	configCmd.AddCommand(setEndpointCmd)
	configCmd.AddCommand(setTemplateCmd)
	configCmd.AddCommand(showCmd)
}
