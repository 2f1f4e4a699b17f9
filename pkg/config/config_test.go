package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsLoad(t *testing.T) {
	m := NewManager()
	m.SetTargetsFile("targets.txt")
	require.NoError(t, m.Load(nil, ""))

	cfg := m.Get()
	assert.Equal(t, "scan_results", cfg.OutputDir)
	assert.Equal(t, 1, cfg.Workers.Nmap)
	assert.Equal(t, 1000, cfg.Nmap.TopPorts)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, filepath.Join("scan_results", "targets_state.json"), cfg.StateFile)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{
		"--max-nmap", "4",
		"--max-nuclei", "2",
		"--timeout", "120",
		"--top-ports", "576",
		"--output-dir", "out",
	}))

	m := NewManager()
	m.SetTargetsFile("nets.txt")
	require.NoError(t, m.Load(flags, ""))

	cfg := m.Get()
	assert.Equal(t, 4, cfg.Workers.Nmap)
	assert.Equal(t, 2, cfg.Workers.Nuclei)
	assert.Equal(t, 120, cfg.Timeouts.PortScan)
	assert.Equal(t, 120, cfg.Timeouts.ServiceScan, "timeout flag covers the service scan too")
	assert.Equal(t, 576, cfg.Nmap.TopPorts)
	assert.Equal(t, filepath.Join("out", "nets_state.json"), cfg.StateFile)
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "workers:\n  nmap: 8\nnmap:\n  top_ports: 100\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	m := NewManager()
	m.SetTargetsFile("targets.txt")
	require.NoError(t, m.Load(nil, path))

	cfg := m.Get()
	assert.Equal(t, 8, cfg.Workers.Nmap)
	assert.Equal(t, 100, cfg.Nmap.TopPorts)
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero nmap workers", func(c *Config) { c.Workers.Nmap = 0 }},
		{"too many nuclei workers", func(c *Config) { c.Workers.Nuclei = 101 }},
		{"timeout too long", func(c *Config) { c.Timeouts.ServiceScan = 1441 }},
		{"top ports too large", func(c *Config) { c.Nmap.TopPorts = 70000 }},
		{"intensity out of range", func(c *Config) { c.Nmap.VersionIntensity = 10 }},
		{"both scan modes", func(c *Config) { c.HostsOnly = true; c.PortsOnly = true }},
		{"missing targets file", func(c *Config) { c.TargetsFile = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TargetsFile = "targets.txt"
			tt.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestCommandTemplates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Nmap.TopPorts = 576

	host := cfg.HostDiscoveryCommand("out/10_0_0_0-24", "10.0.0.0/24")
	assert.Equal(t, "nmap", host[0])
	assert.Contains(t, host, "-sn")
	assert.Contains(t, host, "10.0.0.0/24")
	assert.Contains(t, host, filepath.Join("out/10_0_0_0-24", "hosts"))

	ports := cfg.PortDiscoveryCommand("out/t")
	assert.Contains(t, ports, "--top-ports")
	assert.Contains(t, ports, "576")
	assert.Contains(t, ports, filepath.Join("out/t", "open-ports.xml"))
	assert.Contains(t, ports, filepath.Join("out/t", "ips.txt"))

	svc := cfg.ServiceScanCommand("out/t", "80,443")
	assert.Contains(t, svc, "-sV")
	assert.Contains(t, svc, "80,443")

	nuclei := cfg.NucleiCommand("out/t")
	assert.Equal(t, "nuclei", nuclei[0])
	assert.Contains(t, nuclei, filepath.Join("out/t", "target_urls.txt"))
	assert.Contains(t, nuclei, filepath.Join("out/t", "nuclei", "output.json"))
}
