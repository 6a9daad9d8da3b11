package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gotrs-io/e2eprobe/internal/check"
	"github.com/gotrs-io/e2eprobe/internal/scenario"
	"github.com/gotrs-io/e2eprobe/internal/schema"
)

func newRenderCmd() *cobra.Command {
	var format, output, title string
	cmd := &cobra.Command{
		Use:   "render FINDINGS.json...",
		Short: "Merge findings documents and render them as md, json, html or xlsx",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			merged := check.Findings{Title: title, GeneratedAt: time.Now().UTC()}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				if err := schema.Validate(schema.KindFindings, data); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				f, err := check.DecodeFindings(bytes.NewReader(data))
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if merged.Title == "" {
					merged.Title = f.Title
				}
				merged.Merge(f)
			}
			return writeFindings(cmd.OutOrStdout(), output, format, merged)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (default: from --output extension, else md)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&title, "title", "", "Report title (default: the first document's title)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate scenario, findings or report documents against their schemas",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				k, err := validateFile(path, schema.Kind(kind))
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s)\n", path, k)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d document(s) invalid", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Document kind: scenarios, findings or report (default: detected)")
	return cmd
}

func validateFile(path string, kind schema.Kind) (schema.Kind, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if kind == "" {
		if kind, err = schema.Detect(data); err != nil {
			return "", err
		}
	}
	if kind == schema.KindScenarios {
		// Parse validates the schema and the cross-field rules.
		_, err := scenario.Parse(data)
		return kind, err
	}
	return kind, schema.Validate(kind, data)
}
