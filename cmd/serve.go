package cmd

import (
	"fmt"
	"os"

	"github.com/arin/doc2html/internal/config"
	"github.com/arin/doc2html/internal/server"
	"github.com/arin/doc2html/internal/store"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serveAddr   string
	serveDryRun bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversion API over HTTP",
	Long: `Start an HTTP server exposing:

  POST /api/convert    multipart "file" or form "text" → {"html": preview}
  POST /api/generate   {"content": "..."} → event stream of progress, then done or error
  POST /api/save       {"html": "..."} → {"url": "/uploads/<id>.html"}
  GET  /uploads/<id>.html
  GET  /prm.md         the built-in prompt template`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if !serveDryRun && cfg.APIKey == "" {
			return fmt.Errorf("no API key set, run: d2h config set-key <key>")
		}
		addr := serveAddr
		if addr == "" {
			addr = cfg.ServerAddr
		}

		log := logrus.StandardLogger()
		if !verbose {
			// Request logs are info level.
			log.SetLevel(logrus.InfoLevel)
		}

		srv, err := server.New(newGenerator(cfg, serveDryRun, log), server.Config{
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Endpoint: cfg.Endpoint,
			Pages:    store.Dir{Root: cfg.OutputDir},
			OnRun: func(r server.Run) {
				runRecord{
					Source:     "(web)",
					Format:     "text",
					Model:      r.Request.Model,
					Subcommand: "serve",
					Result:     r.Result,
					Err:        r.Err,
					Elapsed:    r.Elapsed,
				}.save()
			},
		}, log)
		if err != nil {
			return err
		}

		color.New(color.FgCyan, color.Bold).Fprintf(os.Stderr, "\n  d2h serving on %s\n", addr)
		color.New(color.FgHiBlack).Fprintf(os.Stderr, "  model %s, pages in %s\n\n", cfg.Model, cfg.OutputDir)
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server_addr from config, :8080)")
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Use a local placeholder model instead of the API")
}
