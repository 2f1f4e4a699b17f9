// pkg/state/record.go
package state

import "time"

// TargetRecord holds everything known about a single target: a host address
// or a network no larger than /24. The ID is the normalized target string and
// never changes after creation; all other fields are mutated through Registry
// methods only.
type TargetRecord struct {
	Target          string          `json:"target"`
	Stage           Stage           `json:"stage"`
	Directory       string          `json:"directory"`
	LiveHosts       []string        `json:"live_hosts"`
	OpenPorts       *string         `json:"open_ports"`
	Endpoints       []string        `json:"target_urls"`
	SecondaryStatus SecondaryStatus `json:"nuclei_status"`
	StartedAt       string          `json:"started_at"`
	CompletedAt     *string         `json:"completed_at"`
	Error           *string         `json:"error"`
}

func newTargetRecord(target, directory string) *TargetRecord {
	return &TargetRecord{
		Target:    target,
		Stage:     StagePending,
		Directory: directory,
		LiveHosts: []string{},
		Endpoints: []string{},
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// complete reports whether the target needs no further work: either its stage
// is terminal, or the primary pipeline finished and the secondary axis has
// reached an outcome.
func (r *TargetRecord) complete() bool {
	if r.Stage.Terminal() {
		return true
	}
	if r.Stage == StageServiceScanComplete {
		return r.SecondaryStatus.Resolved()
	}
	return false
}

// clone returns a copy safe to hand out while the registry keeps mutating.
func (r *TargetRecord) clone() *TargetRecord {
	cp := *r
	cp.LiveHosts = append([]string(nil), r.LiveHosts...)
	cp.Endpoints = append([]string(nil), r.Endpoints...)
	if r.OpenPorts != nil {
		v := *r.OpenPorts
		cp.OpenPorts = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		cp.CompletedAt = &v
	}
	if r.Error != nil {
		v := *r.Error
		cp.Error = &v
	}
	return &cp
}
