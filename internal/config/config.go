package config

import (
	"path/filepath"
	"time"
)

type Config struct {
	Defaults DefaultsConfig       `yaml:"defaults" toml:"defaults" json:"defaults"`
	Jobs     map[string]JobConfig `yaml:"jobs" toml:"jobs" json:"jobs,omitempty" validate:"dive"`
	Log      LogConfig            `yaml:"log" toml:"log" json:"log"`
	Sweep    SweepConfig          `yaml:"sweep" toml:"sweep" json:"sweep"`
	UI       UIConfig             `yaml:"ui" toml:"ui" json:"ui"`

	path string
}

// Path returns the file the config was loaded from, or "" for defaults.
func (c *Config) Path() string { return c.path }

// BaseDir is the directory relative job paths resolve against: the config
// file's directory, or fallback when no file was loaded.
func (c *Config) BaseDir(fallback string) string {
	if c.path == "" {
		return fallback
	}
	return filepath.Dir(c.path)
}

// DefaultsConfig applies to every run unless a job or flag overrides it.
type DefaultsConfig struct {
	Strategy     string        `yaml:"strategy" toml:"strategy" json:"strategy,omitempty" validate:"omitempty,oneof=pipe file" jsonschema:"enum=pipe,enum=file"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout" json:"timeout,omitempty" validate:"gte=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" toml:"idle_timeout" json:"idle_timeout,omitempty" validate:"gte=0"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval" json:"poll_interval,omitempty" validate:"gt=0"`
	StopGrace    time.Duration `yaml:"stop_grace" toml:"stop_grace" json:"stop_grace,omitempty" validate:"gt=0"`
	TempDir      string        `yaml:"temp_dir" toml:"temp_dir" json:"temp_dir,omitempty"`
}

type JobConfig struct {
	Description   string            `yaml:"description" toml:"description" json:"description,omitempty"`
	Command       []string          `yaml:"command" toml:"command" json:"command,omitempty"`
	Shell         string            `yaml:"shell" toml:"shell" json:"shell,omitempty"`
	Dir           string            `yaml:"dir" toml:"dir" json:"dir,omitempty"`
	Env           map[string]string `yaml:"env" toml:"env" json:"env,omitempty"`
	ClearEnv      bool              `yaml:"clear_env" toml:"clear_env" json:"clear_env,omitempty"`
	Timeout       *time.Duration    `yaml:"timeout" toml:"timeout" json:"timeout,omitempty" validate:"omitempty,gte=0"`
	IdleTimeout   *time.Duration    `yaml:"idle_timeout" toml:"idle_timeout" json:"idle_timeout,omitempty" validate:"omitempty,gte=0"`
	Strategy      string            `yaml:"strategy" toml:"strategy" json:"strategy,omitempty" validate:"omitempty,oneof=pipe file" jsonschema:"enum=pipe,enum=file"`
	Input         string            `yaml:"input" toml:"input" json:"input,omitempty" validate:"excluded_with=InputFile"`
	InputFile     string            `yaml:"input_file" toml:"input_file" json:"input_file,omitempty"`
	DiscardOutput bool              `yaml:"discard_output" toml:"discard_output" json:"discard_output,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level,omitempty" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `yaml:"format" toml:"format" json:"format,omitempty" validate:"oneof=text json" jsonschema:"enum=text,enum=json"`
}

type SweepConfig struct {
	OlderThan time.Duration `yaml:"older_than" toml:"older_than" json:"older_than,omitempty" validate:"gte=0"`
}

type UIConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" toml:"refresh_interval" json:"refresh_interval,omitempty" validate:"gt=0"`
	ShowStats       *bool         `yaml:"show_stats" toml:"show_stats" json:"show_stats,omitempty"`
	Wrap            *bool         `yaml:"wrap" toml:"wrap" json:"wrap,omitempty"`
}
