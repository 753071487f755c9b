package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/justinpbarnett/procctl/internal/process"
	"github.com/spf13/cobra"
)

const (
	exitTimeout     = 124
	exitInterrupted = 130
)

// runFlags are the per-run overrides shared by run, job, and watch.
type runFlags struct {
	shell       string
	timeout     time.Duration
	idleTimeout time.Duration
	strategy    string
	dir         string
	env         []string
	clearEnv    bool
	inputFile   string
	quiet       bool
}

func (f *runFlags) register(cmd *cobra.Command, withShell bool) {
	fs := cmd.Flags()
	if withShell {
		fs.StringVar(&f.shell, "shell", "", "run this string with the system shell instead of argv")
	}
	fs.DurationVar(&f.timeout, "timeout", 0, "kill the command after this long (0 disables)")
	fs.DurationVar(&f.idleTimeout, "idle-timeout", 0, "kill the command after this long without output (0 disables)")
	fs.StringVar(&f.strategy, "strategy", "", "output strategy: pipe or file")
	fs.StringVar(&f.dir, "dir", "", "working directory of the command")
	fs.StringArrayVar(&f.env, "env", nil, "set an environment variable, KEY=VALUE (repeatable)")
	fs.BoolVar(&f.clearEnv, "no-inherit-env", false, "start from an empty environment")
	fs.StringVar(&f.inputFile, "input-file", "", "feed this file to the command's stdin")
}

// apply overlays the flags the user actually set onto pc.
func (f *runFlags) apply(cmd *cobra.Command, pc *process.Config) error {
	fs := cmd.Flags()
	if fs.Changed("timeout") {
		pc.Timeout = f.timeout
	}
	if fs.Changed("idle-timeout") {
		pc.IdleTimeout = f.idleTimeout
	}
	if fs.Changed("strategy") {
		s, err := process.ParseStrategy(f.strategy)
		if err != nil {
			return err
		}
		pc.Strategy = s
	}
	if f.dir != "" {
		pc.Dir = f.dir
	}
	if f.clearEnv {
		pc.ClearEnv = true
	}
	if len(f.env) > 0 {
		env, err := parseEnv(f.env)
		if err != nil {
			return err
		}
		merged := maps.Clone(pc.Env)
		if merged == nil {
			merged = make(map[string]string, len(env))
		}
		maps.Copy(merged, env)
		pc.Env = merged
	}
	if f.inputFile != "" {
		data, err := os.ReadFile(f.inputFile)
		if err != nil {
			return fmt.Errorf("input file: %w", err)
		}
		pc.Input = process.InputBytes(data)
	}
	return nil
}

// commandConfig fills the command fields from --shell or the positional args.
func (f *runFlags) commandConfig(pc *process.Config, args []string) error {
	switch {
	case f.shell != "" && len(args) > 0:
		return errors.New("--shell and a command are mutually exclusive")
	case f.shell != "":
		pc.Shell = f.shell
	case len(args) > 0:
		pc.Command = args
	default:
		return errors.New("no command given")
	}
	return nil
}

func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}

func newRunCmd(a *app) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run [flags] [--] command [args...]",
		Short: "Run a command and stream its output",
		Long: `Run a command, stream its stdout and stderr, and exit with its exit code.

A command killed by a timeout exits with 124, one killed by a signal with
128 plus the signal number.`,
		Example: `  procctl run -- make test
  procctl run --timeout 30s --shell 'curl -sf localhost:8080/health'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := a.cfg.BaseProcessConfig(a.logger)
			if err != nil {
				return err
			}
			if err := flags.commandConfig(&pc, args); err != nil {
				return err
			}
			if err := flags.apply(cmd, &pc); err != nil {
				return err
			}
			return stream(cmd.Context(), pc, cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.quiet)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "do not print the command's output")
	return cmd
}

// stream runs pc to completion, forwarding output as it arrives. Output is
// not retained by the controller.
func stream(ctx context.Context, pc process.Config, stdout, stderr io.Writer, quiet bool) error {
	pc.DiscardOutput = true
	if !quiet {
		pc.Sink = func(ch process.Channel, chunk []byte) {
			if ch == process.Stderr {
				stderr.Write(chunk)
				return
			}
			stdout.Write(chunk)
		}
	}
	ctrl, err := process.New(pc)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	_, err = ctrl.Run(ctx)
	return exitError(ctrl, err, stderr)
}

// exitError maps a finished run onto the CLI's exit code convention. A child
// that could not be stopped is a failure even when a timeout asked for the
// stop.
func exitError(ctrl *process.Controller, err error, stderr io.Writer) error {
	var term *process.TerminationError
	var te *process.TimeoutError
	switch {
	case errors.As(err, &term):
		return err
	case errors.As(err, &te):
		fmt.Fprintf(stderr, "procctl: %v\n", te)
		return &exitCodeError{code: exitTimeout}
	case errors.Is(err, context.Canceled):
		return &exitCodeError{code: exitInterrupted}
	case err != nil:
		return err
	}
	exit, err := ctrl.ExitStatus()
	if err != nil {
		return err
	}
	switch {
	case exit.Signaled:
		return &exitCodeError{code: 128 + int(exit.Signal)}
	case exit.Code != 0:
		return &exitCodeError{code: exit.Code}
	}
	return nil
}
