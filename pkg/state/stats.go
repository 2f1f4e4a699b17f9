// pkg/state/stats.go
package state

import (
	"strings"
	"time"
)

// Statistics is a per-stage breakdown of the registry.
type Statistics struct {
	Total      int
	ByStage    map[Stage]int
	Completed  int
	Failed     int
	NoHosts    int
	NoPorts    int
	InProgress int
	Secondary  map[SecondaryStatus]int
}

// Statistics computes counts per stage plus the headline buckets used by the
// end-of-run summary and the process exit code.
func (r *Registry) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Statistics{
		Total:     len(r.targets),
		ByStage:   make(map[Stage]int),
		Secondary: make(map[SecondaryStatus]int),
	}
	for _, rec := range r.targets {
		stats.ByStage[rec.Stage]++

		switch rec.Stage {
		case StageComplete, StageCompleteHostsOnly, StageCompletePortsOnly:
			stats.Completed++
		case StageFailed:
			stats.Failed++
		case StageNoHostsFound:
			stats.NoHosts++
		case StageNoPortsFound:
			stats.NoPorts++
		case StagePending:
		default:
			stats.InProgress++
		}

		if rec.SecondaryStatus != SecondaryUnset {
			stats.Secondary[rec.SecondaryStatus]++
		}
	}
	return stats
}

// ScanSummary aggregates discovery results and run timing.
type ScanSummary struct {
	TotalTargets   int
	TotalHosts     int
	TotalPorts     int
	HostsWithPorts int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// Summary totals the live hosts and open ports found across all targets and
// derives the run duration from the snapshot metadata timestamps.
func (r *Registry) Summary() ScanSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := ScanSummary{TotalTargets: len(r.targets)}
	for _, rec := range r.targets {
		sum.TotalHosts += len(rec.LiveHosts)
		if rec.OpenPorts != nil && *rec.OpenPorts != "" {
			sum.TotalPorts += len(strings.Split(*rec.OpenPorts, ","))
			sum.HostsWithPorts++
		}
	}

	if start, err := time.Parse(time.RFC3339, r.metadata.CreatedAt); err == nil {
		sum.StartTime = start
		if end, err := time.Parse(time.RFC3339, r.metadata.LastUpdated); err == nil {
			sum.EndTime = end
			sum.Duration = end.Sub(start)
		}
	}
	return sum
}
