package config

import (
	"time"

	"github.com/justinpbarnett/procctl/internal/process"
)

func boolPtr(b bool) *bool { return &b }

func DefaultConfig() Config {
	return Config{
		Defaults: DefaultsConfig{
			Strategy:     "pipe",
			PollInterval: process.DefaultPollInterval,
			StopGrace:    process.DefaultStopGrace,
		},
		Jobs: map[string]JobConfig{},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Sweep: SweepConfig{
			OlderThan: 24 * time.Hour,
		},
		UI: UIConfig{
			RefreshInterval: 50 * time.Millisecond,
			ShowStats:       boolPtr(true),
			Wrap:            boolPtr(false),
		},
	}
}
