// pkg/extract/gnmap.go
// Package extract parses the artifacts produced by the external scan tools
// into the typed facts that drive the pipeline. Missing or malformed input is
// a soft failure everywhere: the adapters return empty results, never errors,
// and the caller decides what an empty result means for the target.
package extract

import (
	"bufio"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// LiveHosts extracts the responsive addresses from a grepable discovery
// report. A host line looks like:
//
//	Host: 192.168.1.1 ()    Status: Up
//
// Lines whose status is anything other than Up are excluded.
func LiveHosts(gnmapPath string) []string {
	f, err := os.Open(gnmapPath)
	if err != nil {
		log.Debug().Err(err).Str("path", gnmapPath).Msg("No discovery report to parse")
		return nil
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Host:") || !strings.Contains(line, "Status: Up") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		hosts = append(hosts, fields[1])
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Str("path", gnmapPath).Msg("Error reading discovery report")
	}
	return hosts
}
