package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gotrs-io/e2eprobe/internal/config"
)

func newSynthesizeCmd() *cobra.Command {
	var output, baseURL string
	var rotate, force bool
	cmd := &cobra.Command{
		Use:     "synthesize",
		Aliases: []string{"synth"},
		Short:   "Write a .env file with a generated account for every known role",
		Long: `Synthesize writes E2E_* variables for the base URL and one account per
known role with a random password. Existing values are kept unless
--rotate-secrets is given, in which case only the passwords change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(output); err == nil && !force && !rotate {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists. Use --force to regenerate or --rotate-secrets to change passwords only.\n", output)
				return nil
			}
			s := config.NewSynthesizer(output, baseURL)
			if err := s.SynthesizeEnv(rotate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d generated value(s)).\n", output, s.GeneratedCount())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", ".env", "Output path")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Application base URL (default http://localhost:8080)")
	cmd.Flags().BoolVar(&rotate, "rotate-secrets", false, "Regenerate passwords, keep everything else")
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate an existing file, keeping its values")
	return cmd
}
