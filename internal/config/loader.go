package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load discovers a config file, merges it with defaults, applies environment
// variable overrides, validates the result, and returns the final config.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom loads config using dir as the root for file discovery.
func LoadFrom(dir string) (*Config, error) {
	path, err := discoverConfigPath(dir)
	if err != nil {
		return nil, fmt.Errorf("config discovery: %w", err)
	}
	return LoadFile(path)
}

// LoadFile loads an explicit config file. An empty path yields defaults
// with environment overrides applied.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		override, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		merge(&cfg, override)
		cfg.path = path
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigPath searches the discovery chain and returns the first config
// file that exists. Returns empty string if none found (defaults-only mode).
func discoverConfigPath(dir string) (string, error) {
	if v := os.Getenv("PROCCTL_CONFIG"); v != "" {
		if _, err := os.Stat(v); err != nil {
			return "", err
		}
		return v, nil
	}

	for _, name := range []string{"procctl.yaml", "procctl.yml", "procctl.toml"} {
		local := filepath.Join(dir, name)
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil // can't resolve home, skip
	}
	for _, name := range []string{"config.yaml", "config.toml"} {
		user := filepath.Join(home, ".config", "procctl", name)
		if _, err := os.Stat(user); err == nil {
			return user, nil
		}
	}

	return "", nil
}

// loadFromFile reads a YAML or TOML config file, chosen by extension.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	return &cfg, nil
}

// merge overlays override onto base. Scalar fields override when non-zero,
// jobs merge at the key level, and pointer fields override when non-nil.
func merge(base *Config, override *Config) {
	// Defaults
	if override.Defaults.Strategy != "" {
		base.Defaults.Strategy = override.Defaults.Strategy
	}
	if override.Defaults.Timeout != 0 {
		base.Defaults.Timeout = override.Defaults.Timeout
	}
	if override.Defaults.IdleTimeout != 0 {
		base.Defaults.IdleTimeout = override.Defaults.IdleTimeout
	}
	if override.Defaults.PollInterval != 0 {
		base.Defaults.PollInterval = override.Defaults.PollInterval
	}
	if override.Defaults.StopGrace != 0 {
		base.Defaults.StopGrace = override.Defaults.StopGrace
	}
	if override.Defaults.TempDir != "" {
		base.Defaults.TempDir = override.Defaults.TempDir
	}

	// Jobs merge at key level
	if override.Jobs != nil {
		if base.Jobs == nil {
			base.Jobs = make(map[string]JobConfig)
		}
		for k, v := range override.Jobs {
			base.Jobs[k] = v
		}
	}

	if override.Log.Level != "" {
		base.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		base.Log.Format = override.Log.Format
	}

	if override.Sweep.OlderThan != 0 {
		base.Sweep.OlderThan = override.Sweep.OlderThan
	}

	if override.UI.RefreshInterval != 0 {
		base.UI.RefreshInterval = override.UI.RefreshInterval
	}
	if override.UI.ShowStats != nil {
		base.UI.ShowStats = override.UI.ShowStats
	}
	if override.UI.Wrap != nil {
		base.UI.Wrap = override.UI.Wrap
	}
}

// applyEnvOverrides applies PROCCTL_* environment variables on top of the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROCCTL_STRATEGY"); v != "" {
		cfg.Defaults.Strategy = v
	}
	if v := os.Getenv("PROCCTL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PROCCTL_TEMP_DIR"); v != "" {
		cfg.Defaults.TempDir = v
	}
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"PROCCTL_TIMEOUT", &cfg.Defaults.Timeout},
		{"PROCCTL_IDLE_TIMEOUT", &cfg.Defaults.IdleTimeout},
		{"PROCCTL_POLL_INTERVAL", &cfg.Defaults.PollInterval},
		{"PROCCTL_STOP_GRACE", &cfg.Defaults.StopGrace},
	}
	for _, d := range durations {
		v := os.Getenv(d.name)
		if v == "" {
			continue
		}
		if dur, err := time.ParseDuration(v); err == nil {
			*d.dst = dur
		} else {
			fmt.Fprintf(os.Stderr, "warning: %s=%q is not a valid duration, ignoring\n", d.name, v)
		}
	}
}
