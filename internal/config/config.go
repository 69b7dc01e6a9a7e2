// Package config loads the server configuration once at start time from
// compiled-in defaults, an optional YAML file, SERVERBENCH_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "SERVERBENCH"
	FileName  = "serverbench"
)

type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Binary  BinaryConfig  `mapstructure:"binary" yaml:"binary"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	// Format is json or console.
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=json console"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig holds the settings shared by both protocol surfaces.
type ServerConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers" validate:"gte=1,lte=4096"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"gte=1"`
	// Backlog is informational: the Go runtime sizes the listen backlog
	// from the kernel's somaxconn.
	Backlog         int           `mapstructure:"backlog" yaml:"backlog" validate:"gte=0"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size" yaml:"read_buffer_size" validate:"gte=64,lte=1048576"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

// ListenerConfig describes one accept loop. An empty Listen disables it.
type ListenerConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	// AcceptRate caps accepted connections per second; 0 means unlimited.
	AcceptRate  float64 `mapstructure:"accept_rate" yaml:"accept_rate" validate:"gte=0"`
	AcceptBurst int     `mapstructure:"accept_burst" yaml:"accept_burst" validate:"gte=0"`
}

func (l ListenerConfig) Enabled() bool {
	return l.Listen != ""
}

type BinaryConfig struct {
	ListenerConfig `mapstructure:",squash" yaml:",inline"`
	Workload       WorkloadConfig `mapstructure:"workload" yaml:"workload"`
}

type HTTPConfig struct {
	ListenerConfig `mapstructure:",squash" yaml:",inline"`
}

// WorkloadConfig simulates per-request CPU and I/O cost on binary jobs.
type WorkloadConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Iterations int           `mapstructure:"iterations" yaml:"iterations" validate:"gte=0"`
	MinDelay   time.Duration `mapstructure:"min_delay" yaml:"min_delay" validate:"gte=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

type MonitorConfig struct {
	// Interval between monitor log lines; 0 disables the monitor.
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`
}

// Flags maps command-line flag names to configuration keys.
var Flags = map[string]string{
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"log-output":       "logging.output",
	"workers":          "server.workers",
	"queue-size":       "server.queue_size",
	"read-timeout":     "server.read_timeout",
	"write-timeout":    "server.write_timeout",
	"shutdown-timeout": "server.shutdown_timeout",
	"binary-listen":    "binary.listen",
	"http-listen":      "http.listen",
	"workload":         "binary.workload.enabled",
	"metrics":          "metrics.enabled",
	"metrics-listen":   "metrics.listen",
	"monitor-interval": "monitor.interval",
}

// Load reads the configuration. configPath may be empty, in which case
// serverbench.yaml is searched in the working directory and in
// $XDG_CONFIG_HOME/serverbench. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setupViper(v, configPath)
	setViperDefaults(v, Default())

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := decode(v.AllSettings(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func loadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// SERVERBENCH_HTTP_LISTEN= disables the HTTP surface.
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(Dir())
}

// setViperDefaults registers every key so that AllSettings includes
// environment overrides for keys absent from the file.
func setViperDefaults(v *viper.Viper, d Config) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("server.queue_size", d.Server.QueueSize)
	v.SetDefault("server.backlog", d.Server.Backlog)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.read_buffer_size", d.Server.ReadBufferSize)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("binary.listen", d.Binary.Listen)
	v.SetDefault("binary.accept_rate", d.Binary.AcceptRate)
	v.SetDefault("binary.accept_burst", d.Binary.AcceptBurst)
	v.SetDefault("binary.workload.enabled", d.Binary.Workload.Enabled)
	v.SetDefault("binary.workload.iterations", d.Binary.Workload.Iterations)
	v.SetDefault("binary.workload.min_delay", d.Binary.Workload.MinDelay)
	v.SetDefault("binary.workload.max_delay", d.Binary.Workload.MaxDelay)

	v.SetDefault("http.listen", d.HTTP.Listen)
	v.SetDefault("http.accept_rate", d.HTTP.AcceptRate)
	v.SetDefault("http.accept_burst", d.HTTP.AcceptBurst)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)

	v.SetDefault("monitor.interval", d.Monitor.Interval)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range Flags {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func decode(input map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// Dir returns $XDG_CONFIG_HOME/serverbench, falling back to
// ~/.config/serverbench and finally to the working directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, FileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", FileName)
}

// DefaultPath is where `config init` writes when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), FileName+".yaml")
}
