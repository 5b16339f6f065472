package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var version = "dev"

type rootOptions struct {
	output string
}

// newRootCmd builds the command tree. Tests build a fresh tree per case.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "murphctl",
		Short: "Operator tools for the Murph learning BFF",
		Long: `murphctl inspects a Murph deployment from the terminal.

It can price a session offline, preview review bonuses, list the
marketplace catalog through the backend and read the local ledger.

Quick Start:
  murphctl estimate --seconds 90 --price 2.5
  murphctl bonus --score 0.92
  murphctl listings --limit 10
  murphctl settlements --student stu-1 -o yaml`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case "table", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unsupported output format %q (table, json, yaml)", opts.output)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		newEstimateCmd(opts),
		newBonusCmd(opts),
		newListingsCmd(opts),
		newSettlementsCmd(opts),
	)
	return cmd
}

// render writes v as json or yaml, or calls table for the default format.
func render(w io.Writer, format string, v any, table func(io.Writer) error) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return table(w)
	}
}
