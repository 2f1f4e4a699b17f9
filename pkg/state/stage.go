// pkg/state/stage.go
// Package state tracks per-target scan progress and persists it for resumable runs.
package state

import "encoding/json"

// Stage is the position of a target in the primary scan pipeline.
type Stage string

const (
	StagePending               Stage = "pending"
	StageHostDiscovery         Stage = "host_discovery"
	StageHostDiscoveryComplete Stage = "host_discovery_complete"
	StageNoHostsFound          Stage = "no_hosts_found"
	StagePortDiscovery         Stage = "port_discovery"
	StagePortDiscoveryComplete Stage = "port_discovery_complete"
	StageNoPortsFound          Stage = "no_ports_found"
	StageServiceScan           Stage = "service_scan"
	StageServiceScanComplete   Stage = "service_scan_complete"
	StageComplete              Stage = "complete"
	StageCompleteHostsOnly     Stage = "complete_hosts_only"
	StageCompletePortsOnly     Stage = "complete_ports_only"
	StageFailed                Stage = "failed"
)

// String returns the wire representation of the stage.
func (s Stage) String() string { return string(s) }

// Valid reports whether s is one of the known pipeline stages.
func (s Stage) Valid() bool {
	switch s {
	case StagePending, StageHostDiscovery, StageHostDiscoveryComplete,
		StageNoHostsFound, StagePortDiscovery, StagePortDiscoveryComplete,
		StageNoPortsFound, StageServiceScan, StageServiceScanComplete,
		StageComplete, StageCompleteHostsOnly, StageCompletePortsOnly,
		StageFailed:
		return true
	}
	return false
}

// Terminal reports whether a target in this stage will never advance again.
// StageServiceScanComplete is deliberately not terminal: the secondary scan
// axis still decides whether the target moves to StageComplete.
func (s Stage) Terminal() bool {
	switch s {
	case StageComplete, StageCompleteHostsOnly, StageCompletePortsOnly,
		StageFailed, StageNoHostsFound, StageNoPortsFound:
		return true
	}
	return false
}

// Succeeded reports whether this is a successful terminal stage, i.e. the
// run should not exit non-zero because of a target in this stage.
func (s Stage) Succeeded() bool {
	return s.Terminal() && s != StageFailed
}

// SecondaryStatus tracks the vulnerability-scan pass independently of the
// primary pipeline stage. The zero value means the secondary scan has not
// been considered for the target yet.
type SecondaryStatus string

const (
	SecondaryUnset    SecondaryStatus = ""
	SecondaryQueued   SecondaryStatus = "nuclei_queued"
	SecondaryRunning  SecondaryStatus = "nuclei_running"
	SecondaryComplete SecondaryStatus = "nuclei_complete"
	SecondaryFailed   SecondaryStatus = "nuclei_failed"
	SecondarySkipped  SecondaryStatus = "skipped_no_targets"
)

// MarshalJSON writes the unset status as null so the snapshot field is
// always present.
func (s SecondaryStatus) MarshalJSON() ([]byte, error) {
	if s == SecondaryUnset {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON accepts null as the unset status.
func (s *SecondaryStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = SecondaryUnset
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = SecondaryStatus(v)
	return nil
}

// Resolved reports whether the secondary scan reached an outcome. Unset is
// not resolved: a target that finished the service scan without a status has
// its vulnerability pass still ahead of it.
func (s SecondaryStatus) Resolved() bool {
	switch s {
	case SecondaryComplete, SecondaryFailed, SecondarySkipped:
		return true
	}
	return false
}
