// cmd/reconductor/commands/scan.go
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reconductor/reconductor/cmd/reconductor/internal/format"
	"github.com/reconductor/reconductor/pkg/config"
	"github.com/reconductor/reconductor/pkg/execrun"
	"github.com/reconductor/reconductor/pkg/logging"
	"github.com/reconductor/reconductor/pkg/netutil"
	"github.com/reconductor/reconductor/pkg/orchestrator"
	"github.com/reconductor/reconductor/pkg/state"
	"github.com/reconductor/reconductor/pkg/workspace"
)

// newRunner is swapped by tests to drive the pipeline without spawning real
// tools.
var newRunner = func() execrun.Runner { return execrun.New() }

// Sentinel errors main translates into process exit codes.
var (
	// ErrInterrupted marks a run stopped by the user; the saved state is
	// resumable.
	ErrInterrupted = errors.New("scan interrupted")
	// ErrTargetsFailed marks a run that finished with failed targets.
	ErrTargetsFailed = errors.New("one or more targets failed")
)

// NewScanCommand builds the scan command, which runs the whole pipeline over
// the targets file given as its single positional argument.
func NewScanCommand(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <targets-file>",
		Short: "Run the staged scan pipeline over a list of targets",
		Long: `Reads one IP address or subnet per line from the targets file, splits
subnets larger than /24 into /24 chunks, and drives every target through
host discovery, port discovery, service detection and a nuclei pass.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], *configFile)
		},
	}

	config.BindFlags(cmd.Flags())
	return cmd
}

func runScan(cmd *cobra.Command, targetsFile, configFile string) error {
	mgr := config.NewManager()
	mgr.SetTargetsFile(targetsFile)
	if err := mgr.Load(cmd.Flags(), configFile); err != nil {
		return err
	}
	cfg := mgr.Get()

	if err := logging.ConfigureGlobalLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	root, err := workspace.Prepare(cfg.OutputDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.StateFile), 0o750); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	// One run per state file.
	lock := flock.New(cfg.StateFile + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire state lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("state file %s is in use by another run", cfg.StateFile)
	}
	defer func() { _ = lock.Unlock() }()

	raw, err := netutil.LoadTargets(cfg.TargetsFile)
	if err != nil {
		return err
	}
	targets, skipped := netutil.ExpandTargets(raw, !cfg.NoSplit)
	for _, s := range skipped {
		log.Warn().Str("target", s).Msg("Skipping invalid target")
	}
	if len(targets) == 0 {
		return errors.New("no valid targets to scan")
	}

	registry := state.Open(cfg.StateFile)
	if cfg.Resume {
		log.Info().Str("state_file", cfg.StateFile).Msg("Resume mode, loading previous state")
		if n := registry.ResetInFlight(); n > 0 {
			log.Info().Int("targets", n).Msg("Rewound interrupted work for retry")
		}
	}
	for _, target := range targets {
		dir, err := workspace.PrepareTarget(root, target)
		if err != nil {
			return err
		}
		registry.AddTarget(target, dir)
	}

	log.Info().
		Str("output_dir", root).
		Str("state_file", cfg.StateFile).
		Int("targets", registry.Len()).
		Msg("Starting scan")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := orchestrator.New(cfg, registry, newRunner()).Run(ctx)

	out := cmd.OutOrStdout()
	stats := registry.Statistics()
	format.PrintStatistics(out, stats)
	format.PrintScanSummary(out, registry.Summary())

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Fprintln(out, "Interrupted. State has been saved; rerun with --resume to continue.")
			return ErrInterrupted
		}
		return runErr
	}
	if stats.Failed > 0 {
		log.Warn().Int("failed", stats.Failed).Msg("Some targets failed, check the state file for details")
		return ErrTargetsFailed
	}
	return nil
}
