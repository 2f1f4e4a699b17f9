// pkg/config/templates.go
package config

import (
	"path/filepath"
	"strconv"
)

// Artifact names inside each target's directory. The extraction adapters and
// the command builders must agree on these.
const (
	HostsArtifactBase = "hosts"           // nmap -oA base; produces hosts.gnmap
	LiveHostsFile     = "ips.txt"         // one live address per line
	PortReportFile    = "open-ports.xml"  // nmap XML port report
	EndpointsFile     = "target_urls.txt" // host:port list for nuclei
	ServiceScanBase   = "service_scan"    // nmap -oA base for the service scan
	NucleiDir         = "nuclei"          // secondary-scan report directory
	NucleiReportFile  = "output.json"
)

// HostDiscoveryCommand builds the nmap ping-sweep invocation for a target.
func (c Config) HostDiscoveryCommand(directory, target string) []string {
	return []string{
		"nmap", "-vvv", "-n", "-sn", "-PE", "-PM", "-PP",
		"--min-hostgroup", strconv.Itoa(c.Nmap.HostDiscoveryMinHostgroup),
		"--min-rate", strconv.Itoa(c.Nmap.HostDiscoveryMinRate),
		"--max-retries", strconv.Itoa(c.Nmap.MaxRetries),
		"--max-rtt-timeout", c.Nmap.HostDiscoveryMaxRTT,
		"-oA", filepath.Join(directory, HostsArtifactBase),
		target,
	}
}

// PortDiscoveryCommand builds the fast SYN port scan over the live hosts.
func (c Config) PortDiscoveryCommand(directory string) []string {
	return []string{
		"nmap", "-n", "-Pn", "-sS",
		"--min-rate", strconv.Itoa(c.Nmap.MinRate),
		"--max-retries", strconv.Itoa(c.Nmap.MaxRetries),
		"--top-ports", strconv.Itoa(c.Nmap.TopPorts),
		"-oX", filepath.Join(directory, PortReportFile),
		"-iL", filepath.Join(directory, LiveHostsFile),
	}
}

// ServiceScanCommand builds the version-detection scan restricted to the
// ports found open, given as the canonical comma-joined string.
func (c Config) ServiceScanCommand(directory, ports string) []string {
	return []string{
		"nmap", "-n", "-Pn", "-sV",
		"--version-intensity", strconv.Itoa(c.Nmap.VersionIntensity),
		"-iL", filepath.Join(directory, LiveHostsFile),
		"-p", ports,
		"-oA", filepath.Join(directory, ServiceScanBase),
	}
}

// NucleiCommand builds the vulnerability scan over the discovered endpoints.
func (c Config) NucleiCommand(directory string) []string {
	nucleiDir := filepath.Join(directory, NucleiDir)
	return []string{
		"nuclei",
		"-list", filepath.Join(directory, EndpointsFile),
		"-markdown-export", nucleiDir + string(filepath.Separator),
		"-json-export", filepath.Join(nucleiDir, NucleiReportFile),
	}
}
