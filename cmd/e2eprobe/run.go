package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gotrs-io/e2eprobe/internal/check"
	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/harness"
	"github.com/gotrs-io/e2eprobe/internal/metrics"
	"github.com/gotrs-io/e2eprobe/internal/scenario"
)

type runOptions struct {
	scenarios string
	mode      string
	only      []string
	format    string
	output    string
}

func newRunCmd(configFile *string) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run scenarios once and report the findings",
		Long: `Run executes the selected scenarios against the configured application.

Without --scenarios the built-in scenarios are used. In verify mode the command
exits non-zero when any scenario fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, *configFile, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.scenarios, "scenarios", "s", "", "Scenario file (default: scenarios.file from config, else built-ins)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "verify or investigate (default: mode from config)")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "Run only the named scenarios")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Report format: md, json, html or xlsx (default: from --output extension, else md)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Report file, - for stdout")
	return cmd
}

func runScenarios(cmd *cobra.Command, configFile string, opts *runOptions) error {
	cfg, log, err := loadTargetConfig(configFile)
	if err != nil {
		return err
	}
	if opts.mode != "" {
		cfg.Mode = strings.ToLower(opts.mode)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	path := opts.scenarios
	if path == "" {
		path = cfg.Scenarios.File
	}
	file, err := scenario.Load(path)
	if err != nil {
		return err
	}
	selected, err := file.Select(opts.only...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := harness.New(ctx, cfg, log, harness.WithMetrics(metrics.New()))
	if err != nil {
		return err
	}
	defer h.Close()

	results := scenario.NewRunner(h, log, cfg.Mode).RunAll(ctx, selected)
	findings := scenario.Findings(fmt.Sprintf("e2eprobe run %s against %s", h.RunID(), cfg.App.BaseURL), results)
	if err := writeFindings(cmd.OutOrStdout(), opts.output, opts.format, findings); err != nil {
		return err
	}

	if !scenario.Passed(results) && !cfg.IsInvestigation() {
		return errChecksFailed
	}
	return ctx.Err()
}

// writeFindings renders findings to path, or to stdout when path is "" or "-".
func writeFindings(stdout io.Writer, path, format string, findings check.Findings) error {
	if format == "" {
		format = formatFromPath(path)
	}
	if path == "" || path == "-" {
		return check.Render(stdout, format, findings)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := check.Render(f, format, findings); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return check.FormatJSON
	case ".html", ".htm":
		return check.FormatHTML
	case ".xlsx":
		return check.FormatXLSX
	default:
		return check.FormatMarkdown
	}
}

// scenariosFor loads every scenario the config names.
func scenariosFor(cfg *config.Config) ([]scenario.Scenario, error) {
	file, err := scenario.Load(cfg.Scenarios.File)
	if err != nil {
		return nil, err
	}
	return file.Select()
}
