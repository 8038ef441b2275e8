package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/arin/doc2html/internal/ai"
	"github.com/arin/doc2html/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const doctorTimeout = 10 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and endpoint health",
	Long: `Run a health check on your d2h setup.
Verifies the API key, endpoint reachability, model availability,
the prompt template and the output directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		green := color.New(color.FgGreen)
		red := color.New(color.FgRed)
		yellow := color.New(color.FgYellow)
		dim := color.New(color.FgHiBlack)
		cyan := color.New(color.FgCyan, color.Bold)

		cyan.Fprintf(os.Stderr, "\n  🩺 d2h doctor\n\n")

		pass, fail, warn := 0, 0, 0

		check := func(name string, fn func() (string, error)) {
			detail, err := fn()
			if err != nil {
				if strings.HasPrefix(err.Error(), "warn:") {
					yellow.Fprintf(os.Stderr, "  ⚠ %s\n", name)
					dim.Fprintf(os.Stderr, "    %s\n", strings.TrimPrefix(err.Error(), "warn:"))
					warn++
				} else {
					red.Fprintf(os.Stderr, "  ✗ %s\n", name)
					dim.Fprintf(os.Stderr, "    %s\n", err.Error())
					fail++
				}
			} else {
				green.Fprintf(os.Stderr, "  ✓ %s", name)
				if detail != "" {
					dim.Fprintf(os.Stderr, " — %s", detail)
				}
				fmt.Fprintln(os.Stderr)
				pass++
			}
		}

		cfg, _ := config.Load()
		ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
		defer cancel()

		check("Config directory", func() (string, error) {
			dir := config.Dir()
			info, err := os.Stat(dir)
			if err != nil {
				return "", fmt.Errorf("warn:~/.doc2html not found, it is created on first use")
			}
			if !info.IsDir() {
				return "", fmt.Errorf("~/.doc2html exists but is not a directory")
			}
			return dir, nil
		})

		check("API key set", func() (string, error) {
			if cfg.APIKey == "" {
				return "", fmt.Errorf("run: d2h config set-key <key>, or set D2H_API_KEY")
			}
			return cfg.MaskedKey(), nil
		})

		var models []string
		check("Endpoint reachable", func() (string, error) {
			if cfg.APIKey == "" {
				return "", fmt.Errorf("warn:skipped, no API key")
			}
			ids, err := ai.ListModels(ctx, cfg.Endpoint, cfg.APIKey)
			if err != nil {
				return "", fmt.Errorf("%s: %v", ai.BaseURL(cfg.Endpoint), err)
			}
			models = ids
			return fmt.Sprintf("%s (%d models)", ai.BaseURL(cfg.Endpoint), len(ids)), nil
		})

		check(fmt.Sprintf("Model available (%s)", cfg.Model), func() (string, error) {
			if models == nil {
				return "", fmt.Errorf("warn:skipped, endpoint not checked")
			}
			if slices.Contains(models, cfg.Model) {
				return "ready", nil
			}
			return "", fmt.Errorf("warn:%s is not in the endpoint's model list, run: d2h config set-model <name>", cfg.Model)
		})

		check("Prompt template", func() (string, error) {
			tmpl, err := ai.TemplateFrom(cfg.Template).Template(ctx)
			if err != nil {
				return "", fmt.Errorf("warn:%v, generation will use a placeholder prompt", err)
			}
			source := cfg.Template
			if source == "" {
				source = "built-in"
			}
			return fmt.Sprintf("%s, %d chars", source, len([]rune(tmpl))), nil
		})

		check("Output directory", func() (string, error) {
			if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
				return "", fmt.Errorf("cannot create %s: %v", cfg.OutputDir, err)
			}
			probe, err := os.CreateTemp(cfg.OutputDir, ".doctor-*")
			if err != nil {
				return "", fmt.Errorf("%s is not writable: %v", cfg.OutputDir, err)
			}
			probe.Close()
			os.Remove(probe.Name())
			return cfg.OutputDir, nil
		})

		check("System info", func() (string, error) {
			return fmt.Sprintf("%s/%s, %s", runtime.GOOS, runtime.GOARCH, runtime.Version()), nil
		})

		// Summary
		fmt.Fprintln(os.Stderr)
		total := pass + fail + warn
		if fail == 0 && warn == 0 {
			green.Fprintf(os.Stderr, "  All %d checks passed. You're good to go.\n\n", total)
		} else if fail == 0 {
			yellow.Fprintf(os.Stderr, "  %d passed, %d warnings. Everything works, but some things could be better.\n\n", pass, warn)
		} else {
			red.Fprintf(os.Stderr, "  %d passed, %d failed, %d warnings. Fix the failures above.\n\n", pass, fail, warn)
		}

		return nil
	},
}
