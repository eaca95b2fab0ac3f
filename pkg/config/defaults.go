package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default values applied by ApplyDefaults.
const (
	DefaultShutdownTimeout = 30 * time.Second
	DefaultServerAddress   = "127.0.0.1:8086"
	DefaultMetricsPath     = "/metrics"
	DefaultNumCompactors   = 2
	DefaultNumMemtables    = 2
	DefaultMemTableSize    = ByteSize(16 << 20)
	DefaultBlockCacheSize  = ByteSize(32 << 20)
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyNodeDefaults(&cfg.Node)
	applyPersistenceDefaults(&cfg.Persistence, &cfg.Node)
	applyTuningDefaults(&cfg.Tuning)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

func applyNodeDefaults(cfg *NodeConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = getDefaultDataDir()
	}
}

// applyPersistenceDefaults places the store under the node data directory.
func applyPersistenceDefaults(cfg *PersistenceConfig, node *NodeConfig) {
	if cfg.Dir == "" && !cfg.InMemory {
		cfg.Dir = filepath.Join(node.DataDir, "persistence")
	}
}

func applyTuningDefaults(cfg *TuningConfig) {
	if cfg.NumCompactors == 0 {
		cfg.NumCompactors = DefaultNumCompactors
	}
	if cfg.NumMemtables == 0 {
		cfg.NumMemtables = DefaultNumMemtables
	}
	if cfg.MemTableSize == 0 {
		cfg.MemTableSize = DefaultMemTableSize
	}
	if cfg.BlockCacheSize == 0 {
		cfg.BlockCacheSize = DefaultBlockCacheSize
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Address == "" {
		cfg.Address = DefaultServerAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Path == "" {
		cfg.Path = DefaultMetricsPath
	}
}

// getDefaultDataDir returns $XDG_DATA_HOME/dittofs-embedded or ~/.local/share/dittofs-embedded.
func getDefaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "dittofs-embedded")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "data")
	}
	return filepath.Join(home, ".local", "share", "dittofs-embedded")
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
