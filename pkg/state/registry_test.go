package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return Open(path), path
}

func TestAddTargetIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.AddTarget("192.168.1.0/24", "out/192_168_1_0-24")
	r.UpdateStage("192.168.1.0/24", StageHostDiscovery)

	// A second add with the same id must not reset the record.
	r.AddTarget("192.168.1.0/24", "out/other")

	require.Equal(t, 1, r.Len())
	rec, ok := r.Get("192.168.1.0/24")
	require.True(t, ok)
	assert.Equal(t, StageHostDiscovery, rec.Stage)
	assert.Equal(t, "out/192_168_1_0-24", rec.Directory)
}

func TestStageIndexPartition(t *testing.T) {
	r, _ := newTestRegistry(t)
	targets := []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/24"}
	for _, tgt := range targets {
		r.AddTarget(tgt, "out/"+tgt)
	}

	r.UpdateStage("10.0.0.0/24", StageHostDiscovery)
	r.UpdateStage("10.0.1.0/24", StageHostDiscoveryComplete)
	r.Fail("10.0.2.0/24", "boom")

	// Every target appears in exactly one stage bucket, the one matching
	// its stage field.
	seen := map[string]int{}
	for _, stage := range []Stage{
		StagePending, StageHostDiscovery, StageHostDiscoveryComplete,
		StagePortDiscovery, StageServiceScan, StageFailed, StageComplete,
	} {
		for _, id := range r.ByStage(stage) {
			seen[id]++
			rec, ok := r.Get(id)
			require.True(t, ok)
			assert.Equal(t, stage, rec.Stage)
		}
	}
	for _, tgt := range targets {
		assert.Equal(t, 1, seen[tgt], "target %s must be indexed exactly once", tgt)
	}
}

func TestReadinessQueries(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.AddTarget("a", "out/a")
	r.AddTarget("b", "out/b")

	assert.ElementsMatch(t, []string{"a", "b"}, r.ReadyFor(StageHostDiscovery))

	r.UpdateStage("a", StageHostDiscoveryComplete)
	assert.Equal(t, []string{"a"}, r.ReadyFor(StagePortDiscovery))
	assert.Equal(t, []string{"b"}, r.ReadyFor(StageHostDiscovery))

	r.UpdateStage("a", StagePortDiscoveryComplete)
	assert.Equal(t, []string{"a"}, r.ReadyFor(StageServiceScan))

	r.UpdateStage("a", StageServiceScanComplete)
	assert.Equal(t, []string{"a"}, r.ReadyFor(StageServiceScanComplete))

	// Once the secondary axis is set the target is no longer ready.
	r.SetSecondaryStatus("a", SecondaryQueued)
	assert.Empty(t, r.ReadyFor(StageServiceScanComplete))
}

func TestQueuedSetMasksReadiness(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.AddTarget("a", "out/a")

	r.MarkQueued("a")
	assert.Empty(t, r.ReadyFor(StageHostDiscovery), "queued target must not be ready")

	r.MarkDequeued("a")
	assert.Equal(t, []string{"a"}, r.ReadyFor(StageHostDiscovery))
}

func TestStartStageDequeuesAndAdvances(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.AddTarget("a", "out/a")
	r.MarkQueued("a")

	r.StartStage("a", StageHostDiscovery)

	rec, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, StageHostDiscovery, rec.Stage)
	// The target left both the queued-set and the pending bucket, so no
	// readiness query can return it anymore.
	assert.Empty(t, r.ReadyFor(StageHostDiscovery))
}

func TestStartSecondaryDequeuesAndRuns(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.AddTarget("a", "out/a")
	r.UpdateStage("a", StageServiceScanComplete)
	r.MarkQueued("a")
	r.SetSecondaryStatus("a", SecondaryQueued)

	r.StartSecondary("a")

	rec, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, SecondaryRunning, rec.SecondaryStatus)
	assert.Empty(t, r.ReadyFor(StageServiceScanComplete))
}

func TestResetInFlight(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		r.AddTarget(id, "out/"+id)
	}
	r.UpdateStage("a", StageHostDiscovery)
	r.UpdateStage("b", StagePortDiscovery)
	r.UpdateStage("c", StageServiceScan)
	r.UpdateStage("d", StageServiceScanComplete)
	r.SetSecondaryStatus("d", SecondaryRunning)
	r.UpdateStage("e", StageComplete)

	assert.Equal(t, 4, r.ResetInFlight())

	expect := map[string]Stage{
		"a": StagePending,
		"b": StageHostDiscoveryComplete,
		"c": StagePortDiscoveryComplete,
		"d": StageServiceScanComplete,
		"e": StageComplete,
	}
	for id, stage := range expect {
		rec, ok := r.Get(id)
		require.True(t, ok)
		assert.Equal(t, stage, rec.Stage, "target %s", id)
	}
	rec, _ := r.Get("d")
	assert.Equal(t, SecondaryUnset, rec.SecondaryStatus)

	// The rewound stages feed the readiness queries again.
	assert.Equal(t, []string{"a"}, r.ReadyFor(StageHostDiscovery))
	assert.Equal(t, []string{"b"}, r.ReadyFor(StagePortDiscovery))
	assert.Equal(t, []string{"c"}, r.ReadyFor(StageServiceScan))
	assert.Equal(t, []string{"d"}, r.ReadyFor(StageServiceScanComplete))
}

func TestSnapshotRoundTrip(t *testing.T) {
	r, path := newTestRegistry(t)
	r.AddTarget("10.0.0.5", "out/10_0_0_5")
	r.UpdateStage("10.0.0.5", StageServiceScanComplete)
	r.SetLiveHosts("10.0.0.5", []string{"10.0.0.5"})
	r.SetOpenPorts("10.0.0.5", "80,443")
	r.SetEndpoints("10.0.0.5", []string{"10.0.0.5:80", "10.0.0.5:443"})
	r.SetSecondaryStatus("10.0.0.5", SecondaryComplete)
	r.Fail("10.0.0.5", "nope")

	loaded := Open(path)
	require.Equal(t, r.Len(), loaded.Len())
	assert.Equal(t, r.Metadata().RunID, loaded.Metadata().RunID)
	assert.Equal(t, r.Metadata().CreatedAt, loaded.Metadata().CreatedAt)

	want, ok := r.Get("10.0.0.5")
	require.True(t, ok)
	got, ok := loaded.Get("10.0.0.5")
	require.True(t, ok)
	assert.Equal(t, want, got)

	// The stage index is derived state and must be rebuilt on load.
	assert.Equal(t, []string{"10.0.0.5"}, loaded.ByStage(StageFailed))
}

func TestRepeatedSavesNeverLeavePartialFile(t *testing.T) {
	r, path := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				id := string(rune('a'+n)) + ".example"
				r.AddTarget(id, "out/"+id)
				r.UpdateStage(id, StageHostDiscovery)
				r.UpdateStage(id, StageHostDiscoveryComplete)

				// Every observable snapshot must be complete, parseable JSON.
				data, err := os.ReadFile(path)
				if err != nil {
					continue
				}
				var snap map[string]any
				assert.NoError(t, json.Unmarshal(data, &snap), "snapshot must never be partial")
			}
		}(i)
	}
	wg.Wait()
}

func TestCorruptSnapshotStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o640))

	r := Open(path)
	assert.Equal(t, 0, r.Len())

	// And the registry is still usable afterwards.
	r.AddTarget("a", "out/a")
	assert.Equal(t, 1, r.Len())
}

func TestSaveFailureKeepsRegistryAuthoritative(t *testing.T) {
	// Snapshot path under a directory that does not exist, so every save
	// fails.
	path := filepath.Join(t.TempDir(), "missing", "state.json")
	r := Open(path)

	r.AddTarget("a", "out/a")
	r.UpdateStage("a", StageHostDiscoveryComplete)
	r.SetLiveHosts("a", []string{"10.0.0.5"})

	rec, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, StageHostDiscoveryComplete, rec.Stage)
	assert.Equal(t, []string{"10.0.0.5"}, rec.LiveHosts)
	assert.Equal(t, []string{"a"}, r.ByStage(StageHostDiscoveryComplete))
	assert.Equal(t, []string{"a"}, r.ReadyFor(StagePortDiscovery))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotWritesNullForUnsetNucleiStatus(t *testing.T) {
	r, path := newTestRegistry(t)
	r.AddTarget("a", "out/a")

	var snap struct {
		Targets map[string]map[string]any `json:"targets"`
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &snap))

	v, present := snap.Targets["a"]["nuclei_status"]
	require.True(t, present, "field is written even when unset")
	assert.Nil(t, v)

	r.SetSecondaryStatus("a", SecondaryComplete)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "nuclei_complete", snap.Targets["a"]["nuclei_status"])
}

func TestCompletionRule(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.AddTarget("a", "out/a")
	assert.False(t, r.Complete("a"))

	r.UpdateStage("a", StageServiceScanComplete)
	// The vulnerability pass has not happened yet, so the target is not done.
	assert.False(t, r.Complete("a"))

	r.SetSecondaryStatus("a", SecondaryRunning)
	assert.False(t, r.Complete("a"))

	r.SetSecondaryStatus("a", SecondaryFailed)
	assert.True(t, r.Complete("a"))

	r.AddTarget("b", "out/b")
	r.UpdateStage("b", StageNoHostsFound)
	assert.True(t, r.Complete("b"))
	assert.Empty(t, r.Incomplete())
}

func TestStatistics(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		r.AddTarget(id, "out/"+id)
	}
	r.UpdateStage("a", StageComplete)
	r.Fail("b", "boom")
	r.UpdateStage("c", StageNoHostsFound)
	r.UpdateStage("d", StagePortDiscovery)
	r.SetSecondaryStatus("a", SecondaryComplete)

	stats := r.Statistics()
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.NoHosts)
	assert.Equal(t, 1, stats.InProgress)
	assert.Equal(t, 1, stats.ByStage[StagePending])
	assert.Equal(t, 1, stats.Secondary[SecondaryComplete])
}

func TestSummaryCountsHostsAndPorts(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.AddTarget("a", "out/a")
	r.AddTarget("b", "out/b")
	r.SetLiveHosts("a", []string{"10.0.0.1", "10.0.0.2"})
	r.SetOpenPorts("a", "22,80,443")
	r.SetLiveHosts("b", []string{"10.0.1.1"})

	sum := r.Summary()
	assert.Equal(t, 2, sum.TotalTargets)
	assert.Equal(t, 3, sum.TotalHosts)
	assert.Equal(t, 3, sum.TotalPorts)
	assert.Equal(t, 1, sum.HostsWithPorts)
	assert.False(t, sum.StartTime.IsZero())
}
