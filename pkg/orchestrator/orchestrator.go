// pkg/orchestrator/orchestrator.go
// Package orchestrator drives every target through the staged scan pipeline.
// A single scheduler loop feeds two independently sized worker pools from the
// registry's readiness queries; workers run the external tools and write
// results back through the registry.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/reconductor/reconductor/pkg/config"
	"github.com/reconductor/reconductor/pkg/execrun"
	"github.com/reconductor/reconductor/pkg/state"
)

// task is one unit of primary-pipeline work: run the given stage for the
// given target.
type task struct {
	target string
	stage  state.Stage
}

// Orchestrator owns the scheduler loop and both worker pools for one run.
type Orchestrator struct {
	cfg      config.Config
	registry *state.Registry
	runner   execrun.Runner
}

// New returns an orchestrator over the given registry. The runner is
// injectable so tests can drive the pipeline without spawning real tools.
func New(cfg config.Config, registry *state.Registry, runner execrun.Runner) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		runner:   runner,
	}
}

// Run starts the worker pools and the scheduler loop and blocks until every
// target is complete or ctx is cancelled. On completion the queues are closed
// and in-flight work drains before Run returns; on cancellation workers stop
// promptly and any running external process is terminated by the runner.
func (o *Orchestrator) Run(ctx context.Context) error {
	// Capacity equal to the target count means the scheduler's sends never
	// block: the queued-set caps outstanding items at one per target.
	capacity := o.registry.Len()
	nmapQueue := make(chan task, capacity)
	nucleiQueue := make(chan string, capacity)

	log.Info().
		Int("nmap_workers", o.cfg.Workers.Nmap).
		Int("nuclei_workers", o.cfg.Workers.Nuclei).
		Int("targets", capacity).
		Msg("Starting scan workers")

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < o.cfg.Workers.Nmap; i++ {
		id := i
		g.Go(func() error { return o.nmapWorker(gctx, id, nmapQueue) })
	}
	for i := 0; i < o.cfg.Workers.Nuclei; i++ {
		id := i
		g.Go(func() error { return o.nucleiWorker(gctx, id, nucleiQueue) })
	}

	g.Go(func() error {
		defer close(nmapQueue)
		defer close(nucleiQueue)
		return o.schedule(gctx, nmapQueue, nucleiQueue)
	})

	err := g.Wait()
	if err == nil {
		log.Info().Msg("All workers stopped")
	}
	return err
}

// schedule is the level-triggered control loop: check global completion,
// enqueue everything ready for each advancing stage in pipeline order, sleep,
// repeat. Closing the queues on return is the workers' drain signal.
func (o *Orchestrator) schedule(ctx context.Context, nmapQueue chan<- task, nucleiQueue chan<- string) error {
	log.Debug().Msg("Orchestration loop started")

	for {
		if len(o.registry.Incomplete()) == 0 {
			log.Info().Msg("All targets processed")
			return nil
		}

		for _, stage := range []state.Stage{
			state.StageHostDiscovery,
			state.StagePortDiscovery,
			state.StageServiceScan,
		} {
			for _, target := range o.registry.ReadyFor(stage) {
				o.registry.MarkQueued(target)
				nmapQueue <- task{target: target, stage: stage}
			}
		}

		for _, target := range o.registry.ReadyFor(state.StageServiceScanComplete) {
			o.registry.MarkQueued(target)
			// Queued, not complete: the worker resolves the status when done.
			o.registry.SetSecondaryStatus(target, state.SecondaryQueued)
			nucleiQueue <- target
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
	}
}

// nmapWorker pulls primary-pipeline tasks until its queue closes or ctx is
// cancelled.
func (o *Orchestrator) nmapWorker(ctx context.Context, id int, queue <-chan task) error {
	logger := log.With().Str("component", "nmap-worker").Int("worker", id).Logger()
	logger.Debug().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-queue:
			if !ok {
				logger.Debug().Msg("Worker stopped")
				return nil
			}
			o.runPrimary(ctx, t)
		}
	}
}

// nucleiWorker pulls secondary-scan targets until its queue closes or ctx is
// cancelled.
func (o *Orchestrator) nucleiWorker(ctx context.Context, id int, queue <-chan string) error {
	logger := log.With().Str("component", "nuclei-worker").Int("worker", id).Logger()
	logger.Debug().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case target, ok := <-queue:
			if !ok {
				logger.Debug().Msg("Worker stopped")
				return nil
			}
			o.runSecondary(ctx, target)
		}
	}
}

// runPrimary dispatches one primary task, converting a panic in a handler
// into a task failure so one bad item never takes the pool down.
func (o *Orchestrator) runPrimary(ctx context.Context, t task) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("target", t.target).Interface("panic", p).Msg("Worker error")
			o.registry.Fail(t.target, fmt.Sprintf("internal error: %v", p))
		}
	}()

	switch t.stage {
	case state.StageHostDiscovery:
		o.hostDiscovery(ctx, t.target)
	case state.StagePortDiscovery:
		o.portDiscovery(ctx, t.target)
	case state.StageServiceScan:
		o.serviceScan(ctx, t.target)
	default:
		o.registry.MarkDequeued(t.target)
		log.Error().Str("target", t.target).Str("stage", t.stage.String()).Msg("Unknown task stage")
	}
}

// runSecondary dispatches one secondary-scan target with the same panic
// boundary; a secondary failure only ever touches the status axis.
func (o *Orchestrator) runSecondary(ctx context.Context, target string) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("target", target).Interface("panic", p).Msg("Worker error")
			o.registry.SetSecondaryStatus(target, state.SecondaryFailed)
			o.completeIfResolved(target)
		}
	}()

	o.nucleiScan(ctx, target)
}
