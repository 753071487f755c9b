package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/justinpbarnett/procctl/internal/config"
	"github.com/spf13/cobra"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// exitCodeError carries a child's exit code out of a command without
// printing anything further.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Commands that work without a valid config file.
var configExemptCommands = map[string]bool{
	"version":    true,
	"schema":     true,
	"update":     true,
	"init":       true,
	"help":       true,
	"completion": true,
}

// app holds what every subcommand needs once the root command has loaded
// configuration.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "procctl",
		Short: "Run and supervise external commands",
		Long: `procctl runs external commands under a controller that collects their
output through pipes or files, enforces wall-clock and idle timeouts, and
always reaps or kills what it started.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configExemptCommands[cmd.Name()] {
				return nil
			}
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: discovered)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(a),
		newJobCmd(a),
		newWatchCmd(a),
		newSweepCmd(a),
		newSchemaCmd(),
		newInitCmd(),
		newVersionCmd(),
		newUpdateCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	level := a.cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if a.cfg.Log.Format == "json" {
		a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), opts))
	} else {
		a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
	}
	return nil
}

// execute runs the CLI and returns the process exit code.
func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(&app{})
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitCodeError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(root.ErrOrStderr(), "error: %v\n", err)
	return 1
}
