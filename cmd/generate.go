package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arin/doc2html/internal/ai"
	"github.com/arin/doc2html/internal/config"
	"github.com/arin/doc2html/internal/ingest"
	"github.com/arin/doc2html/internal/store"
	"github.com/arin/doc2html/internal/ui"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const stdinName = "-"

var (
	genGlob   string
	genOutDir string
	genStdout bool
	genSave   bool
	genDryRun bool
	genModel  string
	genStrict bool
	genStream bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [files...|-]",
	Short: "Generate an HTML page from each document",
	Long: `Generate a complete HTML page from each input document.

Markdown, HTML, DOCX and plain text are accepted. Use - to read from stdin.
Each page is written next to its source as <name>.html unless --out-dir,
--stdout or --save says otherwise.

Examples:
  d2h generate notes.md
  d2h generate --glob 'docs/**/*.{md,docx}' --out-dir site
  d2h generate --dry-run --stream notes.md`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genGlob, "glob", "", "Also process files matching this pattern (supports **)")
	f.StringVarP(&genOutDir, "out-dir", "o", "", "Directory to write pages to (default: next to each source)")
	f.BoolVar(&genStdout, "stdout", false, "Write the page to stdout instead of a file")
	f.BoolVar(&genSave, "save", false, "Store the page under a random name in the configured output_dir")
	f.BoolVar(&genDryRun, "dry-run", false, "Use a local placeholder model instead of the API")
	f.StringVarP(&genModel, "model", "m", "", "Model to use for this run")
	f.BoolVar(&genStrict, "strict", false, "Also require balanced tags and a finished last paragraph")
	f.BoolVar(&genStream, "stream", false, "Echo the page to stderr as it arrives")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if genModel != "" {
		cfg.Model = genModel
	}
	if genStrict {
		cfg.Strict = true
	}

	inputs, err := collectInputs(args, genGlob)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		if !stdinPiped() {
			return fmt.Errorf("no input documents\n\nUsage: d2h generate <file>...\nExample: d2h generate notes.md")
		}
		inputs = []string{stdinName}
	}
	if genStdout && len(inputs) > 1 {
		return errors.New("--stdout takes a single input document")
	}
	if !genDryRun && cfg.APIKey == "" {
		return errors.New("no API key set, run: d2h config set-key <key>")
	}

	gen := newGenerator(cfg, genDryRun, logrus.StandardLogger())

	failed := 0
	for _, in := range inputs {
		if err := generateOne(cmd, gen, cfg, in); err != nil {
			failed++
			if len(inputs) == 1 {
				return err
			}
			color.New(color.FgRed).Fprintf(os.Stderr, "  ✗ %s: %v\n", in, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(inputs))
	}
	return nil
}

func generateOne(cmd *cobra.Command, gen *ai.Generator, cfg *config.Config, input string) error {
	doc, err := loadInput(input)
	if err != nil {
		return err
	}

	var sp *ui.Spinner
	var echo io.Writer
	if genStream {
		echo = os.Stderr
	} else {
		sp = ui.NewSpinner(fmt.Sprintf("Generating %s...", doc.Name))
		sp.Start()
	}
	progress := ui.NewProgress(sp, "Generating "+doc.Name, echo)

	req := ai.Request{
		Content:  doc.Source,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Endpoint: cfg.Endpoint,
	}
	start := time.Now()
	res, genErr := gen.Generate(cmd.Context(), req, progress)
	if genStream {
		fmt.Fprintln(os.Stderr)
	}

	run := runRecord{Source: input, Format: string(doc.Format), Model: cfg.Model, Subcommand: "generate", Result: res, Err: genErr, Elapsed: time.Since(start)}
	if genErr != nil {
		if sp != nil {
			sp.Fail(fmt.Sprintf("%s failed", doc.Name))
		}
		run.save()
		return fmt.Errorf("generation failed: %w", genErr)
	}

	out, err := writePage(cfg, input, res.HTML)
	if err != nil {
		if sp != nil {
			sp.Stop()
		}
		run.Err = err
		run.save()
		return err
	}
	run.Output = out
	run.save()

	summary := fmt.Sprintf("%s → %s (%s, %d attempt%s)", doc.Name, out, ui.FormatBytes(len(res.HTML)), res.Attempts, plural(res.Attempts))
	switch {
	case sp != nil && res.Complete:
		sp.Success(summary)
	case sp != nil:
		sp.Warn(summary + ", page may be incomplete")
	case !res.Complete:
		color.New(color.FgYellow).Fprintf(os.Stderr, "  ! %s, page may be incomplete\n", summary)
	default:
		color.New(color.FgGreen).Fprintf(os.Stderr, "  ✓ %s\n", summary)
	}
	return nil
}

// newGenerator builds a generator for cfg. Dry runs stream a placeholder
// page that is cut short once, so continuation is exercised too.
func newGenerator(cfg *config.Config, dryRun bool, log logrus.FieldLogger) *ai.Generator {
	var transport ai.Transport = ai.NewHTTPTransport(nil)
	if dryRun {
		lt := ai.NewLoremTransport(4)
		lt.CutAt = 0.6
		transport = lt
	}
	return ai.NewGenerator(transport,
		ai.WithTemplate(ai.TemplateFrom(cfg.Template)),
		ai.WithStrict(cfg.Strict),
		ai.WithLogger(log),
	)
}

// collectInputs merges explicit arguments with glob matches, dropping
// duplicates and keeping order.
func collectInputs(args []string, pattern string) ([]string, error) {
	inputs := append([]string(nil), args...)
	if pattern != "" {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		inputs = append(inputs, matches...)
	}

	seen := make(map[string]bool, len(inputs))
	out := inputs[:0]
	for _, in := range inputs {
		if !seen[in] {
			seen[in] = true
			out = append(out, in)
		}
	}
	return out, nil
}

func loadInput(input string) (*ingest.Document, error) {
	if input == stdinName {
		return ingest.FromReader("stdin.txt", os.Stdin)
	}
	return ingest.Load(input)
}

func writePage(cfg *config.Config, input, page string) (string, error) {
	switch {
	case genStdout:
		if _, err := io.WriteString(os.Stdout, page); err != nil {
			return "", fmt.Errorf("failed to write page: %w", err)
		}
		return "stdout", nil
	case genSave:
		pages := store.Dir{Root: cfg.OutputDir}
		name, err := pages.Save(page)
		if err != nil {
			return "", err
		}
		return filepath.Join(pages.Root, name), nil
	}

	out := outputPath(input, genOutDir)
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := os.WriteFile(out, []byte(page), 0o644); err != nil {
		return "", fmt.Errorf("failed to write page: %w", err)
	}
	return out, nil
}

// outputPath maps a source file to the page written for it. An HTML source
// never gets overwritten.
func outputPath(input, outDir string) string {
	if input == stdinName {
		input = "page"
	}
	dir := filepath.Dir(input)
	if outDir != "" {
		dir = outDir
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	out := filepath.Join(dir, base+".html")
	if filepath.Clean(out) == filepath.Clean(input) {
		out = filepath.Join(dir, base+".page.html")
	}
	return out
}

func stdinPiped() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) == 0
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
