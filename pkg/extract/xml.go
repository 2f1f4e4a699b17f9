// pkg/extract/xml.go
package extract

import (
	"encoding/xml"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// portReport mirrors the subset of the nmap XML schema the pipeline needs.
type portReport struct {
	Hosts []reportHost `xml:"host"`
}

type reportHost struct {
	Addresses []reportAddress `xml:"address"`
	Ports     []reportPort    `xml:"ports>port"`
}

type reportAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

type reportPort struct {
	PortID string      `xml:"portid,attr"`
	State  reportState `xml:"state"`
}

type reportState struct {
	State string `xml:"state,attr"`
}

func parsePortReport(xmlPath string) (*portReport, bool) {
	data, err := os.ReadFile(xmlPath)
	if err != nil {
		log.Debug().Err(err).Str("path", xmlPath).Msg("No port report to parse")
		return nil, false
	}
	var report portReport
	if err := xml.Unmarshal(data, &report); err != nil {
		log.Warn().Err(err).Str("path", xmlPath).Msg("Could not parse port report")
		return nil, false
	}
	return &report, true
}

// OpenPorts extracts the set of ports marked open across all hosts in a port
// scan report. It returns the sorted, de-duplicated port numbers and the
// canonical comma-joined rendering used in external commands and the
// snapshot, e.g. "80,443".
func OpenPorts(xmlPath string) ([]int, string) {
	report, ok := parsePortReport(xmlPath)
	if !ok {
		return nil, ""
	}

	seen := make(map[int]struct{})
	for _, host := range report.Hosts {
		for _, port := range host.Ports {
			if port.State.State != "open" {
				continue
			}
			id, err := cast.ToIntE(port.PortID)
			if err != nil || id <= 0 {
				continue
			}
			seen[id] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, ""
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)

	joined := ""
	for i, p := range ports {
		if i > 0 {
			joined += ","
		}
		joined += strconv.Itoa(p)
	}
	return ports, joined
}

// Endpoints extracts one host:port string per open port per host, in document
// order. These drive the secondary vulnerability scan.
func Endpoints(xmlPath string) []string {
	report, ok := parsePortReport(xmlPath)
	if !ok {
		return nil
	}

	var endpoints []string
	for _, host := range report.Hosts {
		addr := ""
		for _, a := range host.Addresses {
			if a.AddrType == "ipv4" {
				addr = a.Addr
				break
			}
		}
		if addr == "" {
			continue
		}
		for _, port := range host.Ports {
			if port.State.State != "open" || port.PortID == "" {
				continue
			}
			endpoints = append(endpoints, net.JoinHostPort(addr, port.PortID))
		}
	}
	return endpoints
}
