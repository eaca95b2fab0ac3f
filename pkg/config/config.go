package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
// Example: DITTOFS_EMBEDDED_LOGGING_LEVEL=DEBUG
const EnvPrefix = "DITTOFS_EMBEDDED"

// Config represents the configuration of an embedded DittoFS instance.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOFS_EMBEDDED_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Node identifies this instance and where it keeps its data
	Node NodeConfig `mapstructure:"node" yaml:"node"`

	// Persistence configures the storage layer built in the first bootstrap phase
	Persistence PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`

	// Tuning carries resource limits handed explicitly to the subsystem builder
	Tuning TuningConfig `mapstructure:"tuning" yaml:"tuning"`

	// Server configures the network server started after bootstrap
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics controls exposure of the metrics registry
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout bounds each cleanup action that honours a deadline
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output (normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled (opt-in)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// NodeConfig identifies the node.
type NodeConfig struct {
	// ID pins the node identity. When empty a random UUID is generated at bootstrap.
	ID string `mapstructure:"id" validate:"omitempty,uuid" yaml:"id"`

	// DataDir is the root directory for node data
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`
}

// PersistenceConfig configures the persistence sub-context.
type PersistenceConfig struct {
	// InMemory keeps all data in memory; Dir is ignored
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`

	// Dir is the BadgerDB directory. Defaults to <data_dir>/persistence.
	Dir string `mapstructure:"dir" validate:"required_if=InMemory false" yaml:"dir"`

	// SyncWrites forces an fsync after every write
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`

	// ReadyTimeout bounds the wait for persistence startup. Zero waits forever.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout" validate:"gte=0" yaml:"ready_timeout"`
}

// TuningConfig holds resource tuning for the storage engine.
//
// These values are passed to the subsystem builder through its dependencies
// instead of being applied to process-wide state.
type TuningConfig struct {
	NumCompactors  int      `mapstructure:"num_compactors" validate:"gte=2" yaml:"num_compactors"`
	NumMemtables   int      `mapstructure:"num_memtables" validate:"gte=1" yaml:"num_memtables"`
	MemTableSize   ByteSize `mapstructure:"memtable_size" validate:"gt=0" yaml:"memtable_size"`
	BlockCacheSize ByteSize `mapstructure:"block_cache_size" yaml:"block_cache_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Address is the listen address (host:port). Port 0 picks a free port.
	Address      string        `mapstructure:"address" validate:"required,listen_addr" yaml:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"gt=0" yaml:"idle_timeout"`
}

// MetricsConfig controls whether the metrics registry is served over HTTP.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the HTTP route serving the registry
	Path string `mapstructure:"path" validate:"omitempty,startswith=/" yaml:"path"`
}

// ByteSize is a size in bytes that decodes from human-readable strings
// such as "64MiB" or "256MB".
type ByteSize uint64

// String formats the size using IEC units.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// MarshalYAML writes the size in human-readable form.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// UnmarshalYAML accepts both numbers and human-readable strings.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	n, err := humanize.ParseBytes(node.Value)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", node.Value, err)
	}
	*b = ByteSize(n)
	return nil
}

// Load loads configuration from the first existing path, environment, and defaults.
//
// Paths are tried in order; the first file that exists is read. When no path
// is given the default location is searched. When no file is found the
// defaults (with environment overrides) are returned.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setupViper(v)
	bindDefaults(v)

	if _, err := readConfigFile(v, paths); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// FileLoader loads configuration files with Load.
type FileLoader struct{}

// Load implements the configuration loader used by the embedded controller.
func (FileLoader) Load(paths ...string) (*Config, error) {
	return Load(paths...)
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// bindDefaults registers every configuration key as a viper default so that
// environment variables can override keys absent from the file. Derived
// values (the persistence directory) are left empty and filled by ApplyDefaults.
func bindDefaults(v *viper.Viper) {
	defaults := GetDefaultConfig()
	defaults.Persistence.Dir = ""

	data, err := yaml.Marshal(defaults)
	if err != nil {
		return
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	setDefaults(v, "", tree)
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			setDefaults(v, full, nested)
			continue
		}
		v.SetDefault(full, value)
	}
}

// readConfigFile reads the first existing file among paths, or the default
// location when paths is empty. It reports whether a file was read.
func readConfigFile(v *viper.Viper, paths []string) (bool, error) {
	if len(paths) == 0 {
		paths = []string{GetDefaultConfigPath()}
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return false, fmt.Errorf("failed to stat config file %q: %w", path, err)
		}

		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return false, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		return true, nil
	}

	return false, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			n, err := humanize.ParseBytes(v)
			if err != nil {
				return nil, fmt.Errorf("invalid byte size %q: %w", v, err)
			}
			return ByteSize(n), nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/dittofs-embedded, ~/.config/dittofs-embedded, or ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittofs-embedded")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittofs-embedded")
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
