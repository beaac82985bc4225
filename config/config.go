package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from TOML.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	OpsAddress  string `toml:"OpsAddress"`
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`

	Log          LogConfig         `toml:"Log"`
	Snapshot     SnapshotConfig    `toml:"Snapshot"`
	Transactions TransactionConfig `toml:"Transactions"`
	Rake         RakeConfig        `toml:"Rake"`
	RPC          RPCConfig         `toml:"RPC"`
	Telemetry    TelemetryConfig   `toml:"Telemetry"`
}

// LogConfig controls the optional rotating log file; stdout JSON logging
// is always on.
type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// SnapshotConfig tunes periodic capture and recovery.
type SnapshotConfig struct {
	IntervalSeconds  int  `toml:"IntervalSeconds"`
	Retention        int  `toml:"Retention"`
	VerifyOnRecovery bool `toml:"VerifyOnRecovery"`
	StrictRecovery   bool `toml:"StrictRecovery"`
}

// TransactionConfig tunes the transaction coordinator.
type TransactionConfig struct {
	TimeoutSeconds int `toml:"TimeoutSeconds"`
	LogCap         int `toml:"LogCap"`
}

// RakeConfig carries the club-creation defaults; per-club policies
// override them.
type RakeConfig struct {
	DefaultPercentage int   `toml:"DefaultPercentage"`
	DefaultCap        int64 `toml:"DefaultCap"`
}

// RPCConfig covers authentication and throttling for the JSON-RPC
// surface.
type RPCConfig struct {
	AuthToken          string `toml:"AuthToken"`
	JWTSecret          string `toml:"JWTSecret"`
	RateLimitPerSecond int    `toml:"RateLimitPerSecond"`
	RateBurst          int    `toml:"RateBurst"`
	MaxBodyBytes       int64  `toml:"MaxBodyBytes"`
}

// TelemetryConfig wires the optional OTLP exporters.
type TelemetryConfig struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Load reads the configuration from the given path, creating a default
// file when none exists. Unknown keys are rejected so typos fail loudly.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.OpsAddress) == "" {
		c.OpsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./cardroom-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.Snapshot.IntervalSeconds <= 0 {
		c.Snapshot.IntervalSeconds = 300
	}
	if c.Snapshot.Retention <= 0 {
		c.Snapshot.Retention = 10
	}
	if c.Transactions.TimeoutSeconds <= 0 {
		c.Transactions.TimeoutSeconds = 30
	}
	if c.Transactions.LogCap <= 0 {
		c.Transactions.LogCap = 10_000
	}
	if c.Rake.DefaultPercentage <= 0 {
		c.Rake.DefaultPercentage = 5
	}
	if c.RPC.RateLimitPerSecond <= 0 {
		c.RPC.RateLimitPerSecond = 50
	}
	if c.RPC.RateBurst <= 0 {
		c.RPC.RateBurst = 100
	}
	if c.RPC.MaxBodyBytes <= 0 {
		c.RPC.MaxBodyBytes = 1 << 20
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
}

// Validate rejects out-of-range fields.
func (c *Config) Validate() error {
	if c.Rake.DefaultPercentage < 0 || c.Rake.DefaultPercentage > 100 {
		return fmt.Errorf("config: Rake.DefaultPercentage must be 0-100, got %d", c.Rake.DefaultPercentage)
	}
	if c.Rake.DefaultCap < 0 {
		return fmt.Errorf("config: Rake.DefaultCap must not be negative")
	}
	if c.Snapshot.Retention < 1 {
		return fmt.Errorf("config: Snapshot.Retention must be at least 1")
	}
	if c.Transactions.TimeoutSeconds < 1 {
		return fmt.Errorf("config: Transactions.TimeoutSeconds must be at least 1")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("config: Log rotation fields must not be negative")
	}
	if strings.TrimSpace(c.RPC.AuthToken) != "" && strings.TrimSpace(c.RPC.JWTSecret) != "" {
		return fmt.Errorf("config: set RPC.AuthToken or RPC.JWTSecret, not both")
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
