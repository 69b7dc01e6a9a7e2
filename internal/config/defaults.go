package config

import (
	"strings"
	"time"
)

const (
	DefaultBinaryListen = "0.0.0.0:5051"
	DefaultHTTPListen   = "0.0.0.0:8081"
	DefaultWorkers      = 8
	DefaultQueueSize    = 128
	DefaultBacklog      = 64
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadBuffer   = 4096
	DefaultShutdown     = 10 * time.Second
	DefaultMetrics      = "127.0.0.1:9091"
	DefaultMonitor      = 30 * time.Second

	DefaultWorkloadIterations = 100000
	DefaultWorkloadMinDelay   = 10 * time.Millisecond
	DefaultWorkloadMaxDelay   = 100 * time.Millisecond
)

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Server: ServerConfig{
			Workers:         DefaultWorkers,
			QueueSize:       DefaultQueueSize,
			Backlog:         DefaultBacklog,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ReadBufferSize:  DefaultReadBuffer,
			ShutdownTimeout: DefaultShutdown,
		},
		Binary: BinaryConfig{
			ListenerConfig: ListenerConfig{Listen: DefaultBinaryListen},
			Workload: WorkloadConfig{
				Iterations: DefaultWorkloadIterations,
				MinDelay:   DefaultWorkloadMinDelay,
				MaxDelay:   DefaultWorkloadMaxDelay,
			},
		},
		HTTP: HTTPConfig{
			ListenerConfig: ListenerConfig{Listen: DefaultHTTPListen},
		},
		Metrics: MetricsConfig{
			Listen: DefaultMetrics,
		},
		Monitor: MonitorConfig{
			Interval: DefaultMonitor,
		},
	}
}

// ApplyDefaults fills zero values and normalizes strings. Listen addresses
// are left alone: empty means the surface is disabled.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetrics
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.Level = strings.ToLower(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "json"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Backlog == 0 {
		cfg.Backlog = DefaultBacklog
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = DefaultReadBuffer
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdown
	}
}
