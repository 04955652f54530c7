// Package config loads this module's startup configuration: a YAML file
// merged with CLI flag overrides, using a register-then-parse pattern
// (stdlib flag + gopkg.in/yaml.v3, not a fabricated CLI framework).
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of startup parameters for a backend or
// coordinator process.
type Config struct {
	// Backend dispatch address this process listens on.
	ListenAddress string `yaml:"listen_address"`

	// Coordinator address fragment instances report status to.
	CoordinatorAddress string `yaml:"coordinator_address"`

	// TLS for coordinator/backend RPC connections.
	SSLClientCACertificate string `yaml:"ssl_client_ca_certificate"`
	TLSEnabled             bool   `yaml:"tls_enabled"`

	// RuntimeState limits
	MaxErrors int `yaml:"max_errors"`
	BatchSize int `yaml:"batch_size"`

	// RPC retry tuning
	OpenRetryWait  time.Duration `yaml:"open_retry_wait"`
	OpenNumRetries int           `yaml:"open_num_retries"`

	// Scheduler
	PoolWhitelistFile string `yaml:"pool_whitelist_file"`

	// PeriodicCounterUpdater's sampling period
	CounterSamplePeriod time.Duration `yaml:"counter_sample_period"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the baseline configuration before YAML or flag
// overrides are applied.
func Default() Config {
	return Config{
		ListenAddress:       ":22000",
		CoordinatorAddress:  ":21000",
		MaxErrors:           100,
		BatchSize:           1024,
		OpenRetryWait:       500 * time.Millisecond,
		OpenNumRetries:      0,
		CounterSamplePeriod: 500 * time.Millisecond,
		LogLevel:            "info",
	}
}

// RegisterFlags registers every Config field as a CLI flag against f,
// using cfg's current values as defaults (so a YAML file loaded first can
// still be overridden by flags).
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&cfg.ListenAddress, "listen_address", cfg.ListenAddress, "Address this backend listens on for ExecPlanFragment RPCs.")
	f.StringVar(&cfg.CoordinatorAddress, "coordinator_address", cfg.CoordinatorAddress, "Coordinator address fragment instances report status to.")
	f.StringVar(&cfg.SSLClientCACertificate, "ssl_client_ca_certificate", cfg.SSLClientCACertificate, "Path to a PEM bundle of trusted CAs for client TLS connections.")
	f.BoolVar(&cfg.TLSEnabled, "tls_enabled", cfg.TLSEnabled, "Require TLS on coordinator/backend RPC connections.")
	f.IntVar(&cfg.MaxErrors, "max_errors", cfg.MaxErrors, "Maximum number of distinct errors retained per query's RuntimeState error log.")
	f.IntVar(&cfg.BatchSize, "batch_size", cfg.BatchSize, "Default row batch size for plan fragment execution.")
	f.DurationVar(&cfg.OpenRetryWait, "open_retry_wait", cfg.OpenRetryWait, "Fixed backoff between OpenWithRetry attempts.")
	f.IntVar(&cfg.OpenNumRetries, "open_num_retries", cfg.OpenNumRetries, "Number of OpenWithRetry attempts; 0 means retry indefinitely.")
	f.StringVar(&cfg.PoolWhitelistFile, "pool_whitelist_file", cfg.PoolWhitelistFile, "Path to the YAML admission pool whitelist.")
	f.DurationVar(&cfg.CounterSamplePeriod, "counter_sample_period", cfg.CounterSamplePeriod, "Sampling period for rate/sampling/bucketing profile counters.")
	f.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "Logging level: debug, info, warn, or error.")
}

// Load reads a YAML document from path into cfg, leaving fields the
// document doesn't set at their current values.
func (cfg *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}
