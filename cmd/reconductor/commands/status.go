// cmd/reconductor/commands/status.go
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reconductor/reconductor/cmd/reconductor/internal/format"
	"github.com/reconductor/reconductor/pkg/state"
)

// NewStatusCommand builds the read-only status command, which summarizes a
// saved state snapshot without touching it.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <state-file>",
		Short: "Summarize a saved scan state file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("read state file: %w", err)
			}

			registry := state.Open(path)
			out := cmd.OutOrStdout()
			format.PrintStatistics(out, registry.Statistics())
			format.PrintScanSummary(out, registry.Summary())
			return nil
		},
	}
}
