package config

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"

	"github.com/justinpbarnett/procctl/internal/process"
)

// JobNames returns the configured job names in sorted order.
func (c *Config) JobNames() []string {
	names := make([]string, 0, len(c.Jobs))
	for name := range c.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BaseProcessConfig returns a process configuration carrying only the
// defaults section. The caller fills in the command.
func (c *Config) BaseProcessConfig(logger *slog.Logger) (process.Config, error) {
	strategy, err := process.ParseStrategy(c.Defaults.Strategy)
	if err != nil {
		return process.Config{}, err
	}
	return process.Config{
		Timeout:      c.Defaults.Timeout,
		IdleTimeout:  c.Defaults.IdleTimeout,
		Strategy:     strategy,
		PollInterval: c.Defaults.PollInterval,
		StopGrace:    c.Defaults.StopGrace,
		TempDir:      c.Defaults.TempDir,
		Logger:       logger,
	}, nil
}

// ProcessConfig resolves the named job into a process configuration. Relative
// job directories and input files are resolved against baseDir.
func (c *Config) ProcessConfig(name, baseDir string, logger *slog.Logger) (process.Config, error) {
	job, ok := c.Jobs[name]
	if !ok {
		return process.Config{}, fmt.Errorf("unknown job %q", name)
	}
	pc, err := c.BaseProcessConfig(logger)
	if err != nil {
		return process.Config{}, err
	}

	pc.Command = job.Command
	pc.Shell = job.Shell
	pc.Env = maps.Clone(job.Env)
	pc.ClearEnv = job.ClearEnv
	pc.DiscardOutput = job.DiscardOutput
	if job.Dir != "" {
		pc.Dir = resolve(baseDir, job.Dir)
	}
	if job.Timeout != nil {
		pc.Timeout = *job.Timeout
	}
	if job.IdleTimeout != nil {
		pc.IdleTimeout = *job.IdleTimeout
	}
	if job.Strategy != "" {
		if pc.Strategy, err = process.ParseStrategy(job.Strategy); err != nil {
			return process.Config{}, err
		}
	}

	switch {
	case job.Input != "":
		pc.Input = process.InputString(job.Input)
	case job.InputFile != "":
		data, err := os.ReadFile(resolve(baseDir, job.InputFile))
		if err != nil {
			return process.Config{}, fmt.Errorf("job %q input: %w", name, err)
		}
		pc.Input = process.InputBytes(data)
	}
	return pc, nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
