// pkg/state/registry.go
package state

import (
	"sort"
	"sync"
	"time"
)

// Registry is the aggregate of all target records for one run. Every mutator
// performs a single atomic mutate + reindex + persist step under one lock, so
// callers on any goroutine observe a consistent registry and an on-disk
// snapshot that reflects every committed mutation.
//
// Besides the records it maintains two pieces of derived, in-memory-only
// state: a stage index (stage -> set of target ids) for O(1) readiness
// queries, and the queued-set of targets currently sitting in a work queue,
// which prevents the scheduler from enqueueing a target twice.
type Registry struct {
	mu         sync.Mutex
	path       string
	metadata   Metadata
	targets    map[string]*TargetRecord
	stageIndex map[Stage]map[string]struct{}
	queued     map[string]struct{}
}

// Open loads the snapshot at path if one exists and returns a ready registry.
// A missing file starts a fresh run; a malformed file is logged and treated
// the same way rather than aborting, so a corrupted snapshot never bricks a
// resume.
func Open(path string) *Registry {
	r := &Registry{
		path:       path,
		metadata:   newMetadata(),
		targets:    make(map[string]*TargetRecord),
		stageIndex: make(map[Stage]map[string]struct{}),
		queued:     make(map[string]struct{}),
	}
	r.loadIfExists()
	r.rebuildStageIndex()
	return r
}

// AddTarget registers a new target in StagePending. Adding an id that is
// already tracked is a no-op, which is what makes appending targets to a
// resumed run safe.
func (r *Registry) AddTarget(target, directory string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.targets[target]; exists {
		return
	}
	rec := newTargetRecord(target, directory)
	r.targets[target] = rec
	r.indexAdd(rec.Stage, target)
	r.save()
}

// UpdateStage moves a target to a new stage, keeping the stage index
// consistent and stamping completed_at when a terminal stage is reached.
func (r *Registry) UpdateStage(target string, stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateStageLocked(target, stage, "")
}

// Fail moves a target to StageFailed and records the reason.
func (r *Registry) Fail(target, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateStageLocked(target, StageFailed, reason)
}

func (r *Registry) updateStageLocked(target string, stage Stage, errMsg string) {
	rec, ok := r.targets[target]
	if !ok {
		return
	}
	r.indexRemove(rec.Stage, target)
	r.indexAdd(stage, target)
	rec.Stage = stage
	if errMsg != "" {
		rec.Error = &errMsg
	}
	if stage.Terminal() {
		now := time.Now().UTC().Format(time.RFC3339)
		rec.CompletedAt = &now
	}
	r.save()
}

// SetLiveHosts records the responsive addresses found by host discovery.
func (r *Registry) SetLiveHosts(target string, hosts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.targets[target]
	if !ok {
		return
	}
	rec.LiveHosts = append([]string(nil), hosts...)
	r.save()
}

// SetOpenPorts records the canonical comma-joined open-port string.
func (r *Registry) SetOpenPorts(target, ports string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.targets[target]
	if !ok {
		return
	}
	rec.OpenPorts = &ports
	r.save()
}

// SetEndpoints records the host:port pairs that drive the secondary scan.
func (r *Registry) SetEndpoints(target string, endpoints []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.targets[target]
	if !ok {
		return
	}
	rec.Endpoints = append([]string(nil), endpoints...)
	r.save()
}

// SetSecondaryStatus updates the vulnerability-scan axis for a target.
func (r *Registry) SetSecondaryStatus(target string, status SecondaryStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.targets[target]
	if !ok {
		return
	}
	rec.SecondaryStatus = status
	r.save()
}

// Get returns a copy of the record for target.
func (r *Registry) Get(target string) (*TargetRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.targets[target]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// Len returns the number of tracked targets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

// TargetIDs returns all tracked target ids in sorted order.
func (r *Registry) TargetIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.targets))
	for id := range r.targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByStage returns the ids currently in stage, sorted for determinism.
func (r *Registry) ByStage(stage Stage) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byStageLocked(stage)
}

func (r *Registry) byStageLocked(stage Stage) []string {
	set := r.stageIndex[stage]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReadyFor returns the targets ready to be queued for an advancing stage:
// those sitting in the predecessor stage and not already in the queued-set.
// Only the four advancing stages have a readiness rule; anything else yields
// nothing.
func (r *Registry) ReadyFor(stage Stage) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []string
	switch stage {
	case StageHostDiscovery:
		candidates = r.byStageLocked(StagePending)
	case StagePortDiscovery:
		candidates = r.byStageLocked(StageHostDiscoveryComplete)
	case StageServiceScan:
		candidates = r.byStageLocked(StagePortDiscoveryComplete)
	case StageServiceScanComplete:
		// Secondary scan readiness: it deliberately waits for the primary
		// pipeline to finish so both tools never hit a host concurrently.
		for _, id := range r.byStageLocked(StageServiceScanComplete) {
			if r.targets[id].SecondaryStatus == SecondaryUnset {
				candidates = append(candidates, id)
			}
		}
	default:
		return nil
	}

	ready := candidates[:0]
	for _, id := range candidates {
		if _, queued := r.queued[id]; !queued {
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkQueued records that a work item for target was pushed onto a queue.
// Queue membership is transient scheduling state, so it is not persisted.
func (r *Registry) MarkQueued(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued[target] = struct{}{}
}

// MarkDequeued records that a worker picked the item up, allowing the
// scheduler to enqueue the target again once its stage changes.
func (r *Registry) MarkDequeued(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queued, target)
}

// StartStage removes target from the queued-set and moves it into stage under
// one lock, so the scheduler never observes a dequeued target still sitting
// in its predecessor stage.
func (r *Registry) StartStage(target string, stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queued, target)
	r.updateStageLocked(target, stage, "")
}

// ResetInFlight rewinds every target an interrupted run left in a running
// stage back to the stage it was picked up from, and clears queued or running
// secondary statuses, so a resumed run retries that work instead of leaving
// it stranded. It returns the number of records touched.
func (r *Registry) ResetInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rewind := map[Stage]Stage{
		StageHostDiscovery: StagePending,
		StagePortDiscovery: StageHostDiscoveryComplete,
		StageServiceScan:   StagePortDiscoveryComplete,
	}

	touched := 0
	for id, rec := range r.targets {
		if prev, ok := rewind[rec.Stage]; ok {
			r.indexRemove(rec.Stage, id)
			r.indexAdd(prev, id)
			rec.Stage = prev
			touched++
		}
		if rec.SecondaryStatus == SecondaryQueued || rec.SecondaryStatus == SecondaryRunning {
			rec.SecondaryStatus = SecondaryUnset
			touched++
		}
	}
	if touched > 0 {
		r.save()
	}
	return touched
}

// StartSecondary dequeues target and marks its vulnerability pass running in
// one step, for the same reason as StartStage.
func (r *Registry) StartSecondary(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queued, target)
	rec, ok := r.targets[target]
	if !ok {
		return
	}
	rec.SecondaryStatus = SecondaryRunning
	r.save()
}

// Complete reports whether target needs no further work.
func (r *Registry) Complete(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.targets[target]
	if !ok {
		return false
	}
	return rec.complete()
}

// Incomplete returns the ids of all targets that still need work, sorted.
func (r *Registry) Incomplete() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, rec := range r.targets {
		if !rec.complete() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) indexAdd(stage Stage, target string) {
	set, ok := r.stageIndex[stage]
	if !ok {
		set = make(map[string]struct{})
		r.stageIndex[stage] = set
	}
	set[target] = struct{}{}
}

func (r *Registry) indexRemove(stage Stage, target string) {
	if set, ok := r.stageIndex[stage]; ok {
		delete(set, target)
	}
}

func (r *Registry) rebuildStageIndex() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stageIndex = make(map[Stage]map[string]struct{})
	for id, rec := range r.targets {
		r.indexAdd(rec.Stage, id)
	}
}
