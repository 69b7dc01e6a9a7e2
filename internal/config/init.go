package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var ErrConfigExists = errors.New("config file already exists")

const fileHeader = `# serverbench configuration
#
# Every key can be overridden with an environment variable named
# SERVERBENCH_<SECTION>_<KEY>, e.g. SERVERBENCH_SERVER_WORKERS=16.
# Set binary.listen or http.listen to "" to disable that surface.

`

// WriteDefault writes the compiled-in configuration as YAML to path. An
// existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal renders cfg as commented YAML with durations in their string form.
func Marshal(cfg Config) ([]byte, error) {
	body, err := yaml.Marshal(toYAML(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return append([]byte(fileHeader), body...), nil
}

// yaml.v3 writes time.Duration as an integer, which viper would read back as
// nanoseconds, so durations are rendered as strings.
func toYAML(cfg Config) map[string]any {
	return map[string]any{
		"logging": cfg.Logging,
		"server": map[string]any{
			"workers":          cfg.Server.Workers,
			"queue_size":       cfg.Server.QueueSize,
			"backlog":          cfg.Server.Backlog,
			"read_timeout":     cfg.Server.ReadTimeout.String(),
			"write_timeout":    cfg.Server.WriteTimeout.String(),
			"read_buffer_size": cfg.Server.ReadBufferSize,
			"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
		},
		"binary": map[string]any{
			"listen":       cfg.Binary.Listen,
			"accept_rate":  cfg.Binary.AcceptRate,
			"accept_burst": cfg.Binary.AcceptBurst,
			"workload": map[string]any{
				"enabled":    cfg.Binary.Workload.Enabled,
				"iterations": cfg.Binary.Workload.Iterations,
				"min_delay":  cfg.Binary.Workload.MinDelay.String(),
				"max_delay":  cfg.Binary.Workload.MaxDelay.String(),
			},
		},
		"http":    cfg.HTTP,
		"metrics": cfg.Metrics,
		"monitor": map[string]any{
			"interval": cfg.Monitor.Interval.String(),
		},
	}
}
