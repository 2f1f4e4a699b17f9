// pkg/state/snapshot.go
package state

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const snapshotVersion = "1.0"

// Metadata describes the run a snapshot belongs to.
type Metadata struct {
	CreatedAt   string `json:"created_at"`
	LastUpdated string `json:"last_updated"`
	Version     string `json:"version"`
	RunID       string `json:"run_id,omitempty"`
}

type snapshot struct {
	Metadata Metadata                 `json:"metadata"`
	Targets  map[string]*TargetRecord `json:"targets"`
}

func newMetadata() Metadata {
	now := time.Now().UTC().Format(time.RFC3339)
	return Metadata{
		CreatedAt:   now,
		LastUpdated: now,
		Version:     snapshotVersion,
		RunID:       uuid.NewString(),
	}
}

// Metadata returns a copy of the snapshot metadata.
func (r *Registry) Metadata() Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadata
}

// save serializes the full registry to the snapshot path. The write is
// atomic: serialize to a temp file in the same directory, then rename over
// the real path, so a reader never sees a partial file. A failed save is a
// durability degradation for this tick, not a fatal error; the in-memory
// registry stays authoritative.
//
// Callers must hold r.mu.
func (r *Registry) save() {
	if r.path == "" {
		return
	}
	r.metadata.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(snapshot{Metadata: r.metadata, Targets: r.targets}, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("path", r.path).Msg("Failed to serialize scan state")
		return
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write scan state")
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		log.Error().Err(err).Str("path", r.path).Msg("Failed to replace scan state")
	}
}

// loadIfExists restores records and metadata from a previous run. A snapshot
// that cannot be read or parsed is logged and ignored so the run starts fresh
// instead of aborting.
func (r *Registry) loadIfExists() {
	if r.path == "" {
		return
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", r.path).Msg("Could not read state file, starting fresh")
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", r.path).Msg("Could not parse state file, starting fresh")
		return
	}

	if snap.Metadata.Version != "" {
		r.metadata = snap.Metadata
	}
	for id, rec := range snap.Targets {
		if rec == nil {
			continue
		}
		if rec.LiveHosts == nil {
			rec.LiveHosts = []string{}
		}
		if rec.Endpoints == nil {
			rec.Endpoints = []string{}
		}
		r.targets[id] = rec
	}
	log.Info().Str("path", r.path).Int("targets", len(r.targets)).Msg("Loaded previous scan state")
}
