// cmd/reconductor/commands/root.go
// Package commands wires the reconductor CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/reconductor/reconductor/pkg/version"
)

const cliExecutable = "reconductor"

// NewCommand constructs the top-level reconductor CLI command.
func NewCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "reconductor conducts staged network reconnaissance scans",
		Long: `reconductor drives a list of hosts and subnets through a staged pipeline:
nmap host discovery, port discovery and service detection, followed by an
independent nuclei vulnerability pass. Progress is snapshotted after every
change, so an interrupted run can be resumed without repeating finished work.`,
		Version: version.Info(),
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")

	cmd.AddCommand(NewScanCommand(&configFile))
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
