// pkg/orchestrator/workers.go
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/reconductor/reconductor/pkg/config"
	"github.com/reconductor/reconductor/pkg/execrun"
	"github.com/reconductor/reconductor/pkg/extract"
	"github.com/reconductor/reconductor/pkg/netutil"
	"github.com/reconductor/reconductor/pkg/state"
)

// runInterrupted distinguishes a run-level cancellation from a per-task
// timeout. An interrupted task is not a failure: the record keeps its running
// stage so a resumed run retries it.
func runInterrupted(ctx context.Context, res execrun.Result) bool {
	return !res.TimedOut && ctx.Err() != nil
}

// failureMessage renders a runner outcome the way it is stored on the record
// and shown in the summary.
func failureMessage(res execrun.Result, err error) string {
	if res.TimedOut {
		return "timed out"
	}
	if res.ExitCode == execrun.SentinelExitCode && err != nil {
		return err.Error()
	}
	return fmt.Sprintf("exit code %d", res.ExitCode)
}

// hostDiscovery runs the ping sweep for target and records the live hosts.
func (o *Orchestrator) hostDiscovery(ctx context.Context, target string) {
	o.registry.StartStage(target, state.StageHostDiscovery)
	rec, ok := o.registry.Get(target)
	if !ok {
		log.Error().Str("target", target).Msg("Target not tracked")
		return
	}

	log.Info().Str("target", target).Msg("Host discovery started")

	res, err := o.runner.Run(ctx, execrun.Command{
		Args:    o.cfg.HostDiscoveryCommand(rec.Directory, target),
		Timeout: o.cfg.HostDiscoveryTimeout(),
		Tag:     target,
	})
	if res.TimedOut || err != nil || res.ExitCode != 0 {
		if runInterrupted(ctx, res) {
			return
		}
		msg := failureMessage(res, err)
		log.Error().Str("target", target).Str("reason", msg).Msg("Host discovery failed")
		o.registry.Fail(target, "Host discovery "+msg)
		return
	}

	hosts := extract.LiveHosts(filepath.Join(rec.Directory, config.HostsArtifactBase+".gnmap"))
	if len(hosts) == 0 {
		log.Info().Str("target", target).Msg("No live hosts found")
		o.registry.SetLiveHosts(target, nil)
		o.registry.UpdateStage(target, state.StageNoHostsFound)
		return
	}

	log.Info().Str("target", target).Int("hosts", len(hosts)).Msg("Found live hosts")

	if err := netutil.SaveLines(hosts, filepath.Join(rec.Directory, config.LiveHostsFile)); err != nil {
		o.registry.Fail(target, "Could not save live hosts: "+err.Error())
		return
	}
	o.registry.SetLiveHosts(target, hosts)

	if o.cfg.HostsOnly {
		o.registry.UpdateStage(target, state.StageCompleteHostsOnly)
		return
	}
	o.registry.UpdateStage(target, state.StageHostDiscoveryComplete)
	log.Info().Str("target", target).Msg("Host discovery complete")
}

// portDiscovery runs the fast port scan over the live hosts and records the
// open ports and the endpoints that feed the vulnerability pass.
func (o *Orchestrator) portDiscovery(ctx context.Context, target string) {
	o.registry.StartStage(target, state.StagePortDiscovery)
	rec, ok := o.registry.Get(target)
	if !ok {
		return
	}

	if len(rec.LiveHosts) == 0 {
		log.Info().Str("target", target).Msg("No live hosts, skipping port discovery")
		o.registry.UpdateStage(target, state.StageNoHostsFound)
		return
	}

	log.Info().Str("target", target).Msg("Port discovery started")

	res, err := o.runner.Run(ctx, execrun.Command{
		Args:    o.cfg.PortDiscoveryCommand(rec.Directory),
		Timeout: o.cfg.PortScanTimeout(),
		Tag:     target,
	})
	if res.TimedOut || err != nil || res.ExitCode != 0 {
		if runInterrupted(ctx, res) {
			return
		}
		msg := failureMessage(res, err)
		log.Error().Str("target", target).Str("reason", msg).Msg("Port discovery failed")
		o.registry.Fail(target, "Port discovery "+msg)
		return
	}

	reportPath := filepath.Join(rec.Directory, config.PortReportFile)
	ports, joined := extract.OpenPorts(reportPath)
	if len(ports) == 0 {
		log.Info().Str("target", target).Msg("No open ports found")
		o.registry.SetOpenPorts(target, "")
		o.registry.UpdateStage(target, state.StageNoPortsFound)
		return
	}

	log.Info().Str("target", target).Str("ports", joined).Msg("Found open ports")
	o.registry.SetOpenPorts(target, joined)

	if endpoints := extract.Endpoints(reportPath); len(endpoints) > 0 {
		o.registry.SetEndpoints(target, endpoints)
		if err := netutil.SaveLines(endpoints, filepath.Join(rec.Directory, config.EndpointsFile)); err != nil {
			log.Warn().Str("target", target).Err(err).Msg("Could not save endpoint list")
		}
	}

	if o.cfg.PortsOnly {
		o.registry.UpdateStage(target, state.StageCompletePortsOnly)
		return
	}
	o.registry.UpdateStage(target, state.StagePortDiscoveryComplete)
	log.Info().Str("target", target).Msg("Port discovery complete")
}

// serviceScan runs version detection against the ports found open.
func (o *Orchestrator) serviceScan(ctx context.Context, target string) {
	o.registry.StartStage(target, state.StageServiceScan)
	rec, ok := o.registry.Get(target)
	if !ok {
		return
	}

	if rec.OpenPorts == nil || *rec.OpenPorts == "" {
		log.Info().Str("target", target).Msg("No open ports, skipping service scan")
		o.registry.UpdateStage(target, state.StageNoPortsFound)
		return
	}

	log.Info().Str("target", target).Msg("Service scan started")

	res, err := o.runner.Run(ctx, execrun.Command{
		Args:    o.cfg.ServiceScanCommand(rec.Directory, *rec.OpenPorts),
		Timeout: o.cfg.ServiceScanTimeout(),
		Tag:     target,
	})
	if res.TimedOut || err != nil || res.ExitCode != 0 {
		if runInterrupted(ctx, res) {
			return
		}
		msg := failureMessage(res, err)
		log.Error().Str("target", target).Str("reason", msg).Msg("Service scan failed")
		o.registry.Fail(target, "Service scan "+msg)
		return
	}

	o.registry.UpdateStage(target, state.StageServiceScanComplete)
	log.Info().Str("target", target).Msg("Service scan complete")

	// Covers resumed runs where the vulnerability pass already resolved.
	o.completeIfResolved(target)
}

// nucleiScan runs the vulnerability pass. Its outcome only ever touches the
// secondary status axis; it never moves a target to StageFailed.
func (o *Orchestrator) nucleiScan(ctx context.Context, target string) {
	o.registry.StartSecondary(target)
	rec, ok := o.registry.Get(target)
	if !ok {
		return
	}

	if len(rec.Endpoints) == 0 {
		log.Info().Str("target", target).Msg("No endpoints, skipping nuclei scan")
		o.registry.SetSecondaryStatus(target, state.SecondarySkipped)
		o.completeIfResolved(target)
		return
	}

	if err := os.MkdirAll(filepath.Join(rec.Directory, config.NucleiDir), 0o750); err != nil {
		log.Warn().Str("target", target).Err(err).Msg("Could not create nuclei directory")
		o.registry.SetSecondaryStatus(target, state.SecondaryFailed)
		o.completeIfResolved(target)
		return
	}

	log.Info().Str("target", target).Int("endpoints", len(rec.Endpoints)).Msg("Nuclei scan started")

	res, err := o.runner.Run(ctx, execrun.Command{
		Args:    o.cfg.NucleiCommand(rec.Directory),
		Timeout: o.cfg.NucleiTimeout(),
		Tag:     target,
	})
	if res.TimedOut || err != nil || res.ExitCode != 0 {
		if runInterrupted(ctx, res) {
			return
		}
		log.Warn().Str("target", target).Str("reason", failureMessage(res, err)).Msg("Nuclei scan had issues")
		o.registry.SetSecondaryStatus(target, state.SecondaryFailed)
	} else {
		log.Info().Str("target", target).Msg("Nuclei scan complete")
		o.registry.SetSecondaryStatus(target, state.SecondaryComplete)
	}

	o.completeIfResolved(target)
}

// completeIfResolved promotes a target to StageComplete once the primary
// pipeline is done and the secondary axis has an outcome.
func (o *Orchestrator) completeIfResolved(target string) {
	rec, ok := o.registry.Get(target)
	if !ok {
		return
	}
	if rec.Stage == state.StageServiceScanComplete && rec.SecondaryStatus.Resolved() {
		o.registry.UpdateStage(target, state.StageComplete)
		log.Info().Str("target", target).Msg("All scans complete")
	}
}
