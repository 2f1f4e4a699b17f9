// pkg/config/config.go
// Package config loads and validates the run configuration from defaults, an
// optional YAML file and command-line flags, in that precedence order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Manager handles loading and accessing the run configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	targetsFile   string
	mu            sync.RWMutex
}

// NewManager creates a Manager with its own koanf instance, so repeated runs
// (and tests) never see another run's merged keys.
func NewManager() *Manager {
	return &Manager{koanfInstance: koanf.New(".")}
}

// DefaultConfig returns the baseline configuration used when no other source
// overrides a value. The defaults mirror the external tools' sane operating
// points: one worker per pool and conservative rates.
func DefaultConfig() Config {
	return Config{
		OutputDir:    "scan_results",
		PollInterval: 2 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Workers: WorkerConfig{
			Nmap:   1,
			Nuclei: 1,
		},
		Timeouts: TimeoutConfig{
			HostDiscovery: 30,
			PortScan:      60,
			ServiceScan:   60,
			Nuclei:        60,
		},
		Nmap: NmapConfig{
			TopPorts:                  1000,
			MinRate:                   500,
			MaxRetries:                3,
			HostDiscoveryMinRate:      1000,
			HostDiscoveryMinHostgroup: 512,
			HostDiscoveryMaxRTT:       "200ms",
			VersionIntensity:          2,
		},
	}
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider so
// koanf knows every key before higher-precedence sources merge in.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"targets_file":  def.TargetsFile,
		"output_dir":    def.OutputDir,
		"state_file":    def.StateFile,
		"hosts_only":    def.HostsOnly,
		"ports_only":    def.PortsOnly,
		"resume":        def.Resume,
		"no_split":      def.NoSplit,
		"poll_interval": def.PollInterval,

		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"workers.nmap":   def.Workers.Nmap,
		"workers.nuclei": def.Workers.Nuclei,

		"timeouts.host_discovery": def.Timeouts.HostDiscovery,
		"timeouts.port_scan":      def.Timeouts.PortScan,
		"timeouts.service_scan":   def.Timeouts.ServiceScan,
		"timeouts.nuclei":         def.Timeouts.Nuclei,

		"nmap.top_ports":                   def.Nmap.TopPorts,
		"nmap.min_rate":                    def.Nmap.MinRate,
		"nmap.max_retries":                 def.Nmap.MaxRetries,
		"nmap.host_discovery_min_rate":     def.Nmap.HostDiscoveryMinRate,
		"nmap.host_discovery_min_hostgroup": def.Nmap.HostDiscoveryMinHostgroup,
		"nmap.host_discovery_max_rtt":      def.Nmap.HostDiscoveryMaxRTT,
		"nmap.version_intensity":           def.Nmap.VersionIntensity,
	}
}

// flagKeys maps CLI flag names to koanf keys. Flags keep the short,
// hyphenated spelling users type while the config tree stays structured.
var flagKeys = map[string]string{
	"output-dir":        "output_dir",
	"state-file":        "state_file",
	"hosts-only":        "hosts_only",
	"ports-only":        "ports_only",
	"resume":            "resume",
	"no-split":          "no_split",
	"poll-interval":     "poll_interval",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"max-nmap":          "workers.nmap",
	"max-nuclei":        "workers.nuclei",
	"host-timeout":      "timeouts.host_discovery",
	"timeout":           "timeouts.port_scan",
	"nuclei-timeout":    "timeouts.nuclei",
	"top-ports":         "nmap.top_ports",
	"min-rate":          "nmap.min_rate",
	"max-retries":       "nmap.max_retries",
	"host-min-rate":     "nmap.host_discovery_min_rate",
	"version-intensity": "nmap.version_intensity",
}

// BindFlags defines the command-line flags that override configuration
// values. Callers attach these to the scan command's flag set.
func BindFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()

	flags.StringP("output-dir", "o", def.OutputDir, "Directory to store scan results")
	flags.String("state-file", "", "Scan state snapshot path (default: <output-dir>/<targets>_state.json)")
	flags.Bool("hosts-only", false, "Stop after host discovery")
	flags.Bool("ports-only", false, "Stop after port discovery (no service scan)")
	flags.BoolP("resume", "r", false, "Resume from previous state and continue incomplete scans")
	flags.Bool("no-split", false, "Don't split larger subnets into /24 chunks (not recommended)")
	flags.Duration("poll-interval", def.PollInterval, "Scheduler poll interval")
	flags.String("log-level", def.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log-format", def.Log.Format, "Log format (text, json)")
	flags.Int("max-nmap", def.Workers.Nmap, "Maximum concurrent nmap workers")
	flags.Int("max-nuclei", def.Workers.Nuclei, "Maximum concurrent nuclei workers")
	flags.Int("host-timeout", def.Timeouts.HostDiscovery, "Timeout in minutes for host discovery")
	flags.Int("timeout", def.Timeouts.PortScan, "Timeout in minutes for port and service scans")
	flags.Int("nuclei-timeout", def.Timeouts.Nuclei, "Timeout in minutes for nuclei scans")
	flags.Int("top-ports", def.Nmap.TopPorts, "Number of top ports to scan (576 covers ~90% of services)")
	flags.Int("min-rate", def.Nmap.MinRate, "Minimum packet rate for port/service scans")
	flags.Int("max-retries", def.Nmap.MaxRetries, "Maximum probe retransmissions")
	flags.Int("host-min-rate", def.Nmap.HostDiscoveryMinRate, "Minimum packet rate for host discovery")
	flags.Int("version-intensity", def.Nmap.VersionIntensity, "nmap version detection intensity 0-9")
}

// Load merges defaults, the optional YAML config file and the provided flag
// set (highest precedence), unmarshals the result and validates it.
func (m *Manager) Load(flags *pflag.FlagSet, configFilePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.koanfInstance.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err == nil {
			if err := m.koanfInstance.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
				return fmt.Errorf("load config file %s: %w", configFilePath, err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("check config file %s: %w", configFilePath, err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", m.koanfInstance, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := m.koanfInstance.Load(provider, nil); err != nil {
			return fmt.Errorf("load command-line flags: %w", err)
		}

		// "timeout" covers both the port and service scan per the CLI
		// contract; service_scan has no flag of its own.
		if f := flags.Lookup("timeout"); f != nil && f.Changed {
			if v, err := flags.GetInt("timeout"); err == nil {
				_ = m.koanfInstance.Set("timeouts.service_scan", v)
			}
		}
	}

	var cfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	if m.targetsFile != "" {
		cfg.TargetsFile = m.targetsFile
	}
	applyDerivedDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	m.currentConfig = cfg
	return nil
}

// SetTargetsFile records the positional targets-file argument. Load applies
// it after the other sources merge, so defaults never clobber it.
func (m *Manager) SetTargetsFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targetsFile = path
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// applyDerivedDefaults fills values computed from other values: today that is
// only the state-file path, derived from the targets file basename.
func applyDerivedDefaults(cfg *Config) {
	if cfg.StateFile == "" && cfg.TargetsFile != "" {
		base := strings.TrimSuffix(filepath.Base(cfg.TargetsFile), filepath.Ext(cfg.TargetsFile))
		cfg.StateFile = filepath.Join(cfg.OutputDir, base+"_state.json")
	}
}

// Validate checks field bounds and cross-field constraints.
func Validate(cfg Config) error {
	if cfg.HostsOnly && cfg.PortsOnly {
		return fmt.Errorf("cannot use both hosts-only and ports-only")
	}
	if err := validator.New().Struct(cfg); err != nil {
		var invalid validator.ValidationErrors
		if ok := errors.As(err, &invalid); ok && len(invalid) > 0 {
			first := invalid[0]
			return fmt.Errorf("invalid configuration: %s fails %q constraint", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
