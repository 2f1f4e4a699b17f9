// pkg/config/types.go
package config

import "time"

// Config is the root configuration for a reconductor run.
type Config struct {
	// TargetsFile is the file with one address or subnet per line.
	TargetsFile string `description:"File containing one IP address or subnet per line" koanf:"targets_file" validate:"required"`
	// OutputDir is the root under which every target gets its own directory.
	OutputDir string `description:"Directory to store scan results" koanf:"output_dir" validate:"required"`
	// StateFile is the snapshot path; defaulted from the targets file basename.
	StateFile string `description:"Scan state snapshot path" koanf:"state_file"`

	HostsOnly bool `description:"Stop after host discovery" koanf:"hosts_only"`
	PortsOnly bool `description:"Stop after port discovery" koanf:"ports_only"`
	Resume    bool `description:"Resume from a previous state file" koanf:"resume"`
	NoSplit   bool `description:"Do not split large subnets into /24 chunks" koanf:"no_split"`

	// PollInterval is the scheduler's delay between readiness scans.
	PollInterval time.Duration `description:"Scheduler poll interval" koanf:"poll_interval" validate:"min=100ms"`

	Log      LogConfig     `description:"Logging configuration" koanf:"log"`
	Workers  WorkerConfig  `description:"Worker pool sizes" koanf:"workers"`
	Timeouts TimeoutConfig `description:"Per-stage timeouts in minutes" koanf:"timeouts"`
	Nmap     NmapConfig    `description:"Parameters passed through to nmap" koanf:"nmap"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level" koanf:"level"`
	Format string `description:"Log format: json | text" koanf:"format"`
}

// WorkerConfig sizes the two independent worker pools.
type WorkerConfig struct {
	Nmap   int `description:"Maximum concurrent nmap workers" koanf:"nmap" validate:"min=1,max=100"`
	Nuclei int `description:"Maximum concurrent nuclei workers" koanf:"nuclei" validate:"min=1,max=100"`
}

// TimeoutConfig holds per-stage timeouts, in minutes.
type TimeoutConfig struct {
	HostDiscovery int `description:"Host discovery timeout (minutes)" koanf:"host_discovery" validate:"min=1,max=1440"`
	PortScan      int `description:"Port discovery timeout (minutes)" koanf:"port_scan" validate:"min=1,max=1440"`
	ServiceScan   int `description:"Service scan timeout (minutes)" koanf:"service_scan" validate:"min=1,max=1440"`
	Nuclei        int `description:"Nuclei scan timeout (minutes)" koanf:"nuclei" validate:"min=1,max=1440"`
}

// NmapConfig carries the tuning parameters substituted verbatim into the
// generated nmap commands.
type NmapConfig struct {
	TopPorts                  int    `description:"Number of top ports to scan" koanf:"top_ports" validate:"min=1,max=65535"`
	MinRate                   int    `description:"Minimum packet rate for port/service scans" koanf:"min_rate" validate:"min=1,max=100000"`
	MaxRetries                int    `description:"Maximum probe retransmissions" koanf:"max_retries" validate:"min=0,max=20"`
	HostDiscoveryMinRate      int    `description:"Minimum packet rate for host discovery" koanf:"host_discovery_min_rate" validate:"min=1,max=100000"`
	HostDiscoveryMinHostgroup int    `description:"Minimum host group size for host discovery" koanf:"host_discovery_min_hostgroup" validate:"min=1,max=8192"`
	HostDiscoveryMaxRTT       string `description:"Maximum RTT timeout for host discovery probes" koanf:"host_discovery_max_rtt" validate:"required"`
	VersionIntensity          int    `description:"nmap version detection intensity 0-9" koanf:"version_intensity" validate:"min=0,max=9"`
}

// HostDiscoveryTimeout returns the host discovery timeout as a duration.
func (c Config) HostDiscoveryTimeout() time.Duration {
	return time.Duration(c.Timeouts.HostDiscovery) * time.Minute
}

// PortScanTimeout returns the port discovery timeout as a duration.
func (c Config) PortScanTimeout() time.Duration {
	return time.Duration(c.Timeouts.PortScan) * time.Minute
}

// ServiceScanTimeout returns the service scan timeout as a duration.
func (c Config) ServiceScanTimeout() time.Duration {
	return time.Duration(c.Timeouts.ServiceScan) * time.Minute
}

// NucleiTimeout returns the nuclei scan timeout as a duration.
func (c Config) NucleiTimeout() time.Duration {
	return time.Duration(c.Timeouts.Nuclei) * time.Minute
}
