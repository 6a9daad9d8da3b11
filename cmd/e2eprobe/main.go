package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/logging"
	"github.com/gotrs-io/e2eprobe/internal/version"
)

// errChecksFailed makes the process exit non-zero without printing twice;
// the findings already say what failed.
var errChecksFailed = errors.New("one or more checks failed")

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "e2eprobe",
		Short: "Browser end-to-end probe for role-gated web applications",
		Long: `e2eprobe logs into a web application as configured roles, walks its
routes, captures console, page and network evidence, and reports what it found.

Run it in verify mode to gate a deployment or in investigate mode to survey a
running system without stopping at the first failure.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./e2eprobe.yaml or ./config/e2eprobe.yaml)")

	root.AddCommand(
		newRunCmd(&configFile),
		newWatchCmd(&configFile),
		newRenderCmd(),
		newValidateCmd(),
		newFakeAppCmd(&configFile),
		newSynthesizeCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version.GetInfo())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "e2eprobe %s\n", version.Full())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

// baseURLProbe answers reachability during base URL autodetection.
var baseURLProbe config.ProbeFunc = config.Reachable

// loadConfig reads the configuration and builds the process logger.
func loadConfig(configFile string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, log, nil
}

// loadTargetConfig is loadConfig for commands that drive a browser against the
// application: app.autodetect is applied before anything connects.
func loadTargetConfig(configFile string) (*config.Config, zerolog.Logger, error) {
	cfg, log, err := loadConfig(configFile)
	if err != nil {
		return nil, log, err
	}
	resolveBaseURL(cfg, log)
	return cfg, log, nil
}

func resolveBaseURL(cfg *config.Config, log zerolog.Logger) {
	cfg.ResolveBaseURL(logging.Component(log, "config"), baseURLProbe)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
