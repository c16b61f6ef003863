// Package cli implements the crmd command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	EnvFile    string
	Trace      bool
}

// NewRootCommand creates the root command for crmd.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "crmd",
		Short: "crmd - lead and deal pipeline service",
		Long: `crmd serves the CRM pipeline API (leads, deals, interactions, tasks and
campaigns) with a per-record audit trail, and archives that trail to object
storage on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading CRMCORE_* variables")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "write operation spans as JSON to stderr")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewExportAuditCommand(opts))

	return cmd
}
