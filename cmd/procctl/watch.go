package main

import (
	"errors"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/justinpbarnett/procctl/internal/process"
	"github.com/justinpbarnett/procctl/internal/ui"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		flags runFlags
		exit  bool
	)
	cmd := &cobra.Command{
		Use:   "watch [NAME | -- command [args...]]",
		Short: "Run a job or command in a live viewer",
		Long: `Run a configured job, or a command given after --, and show its stdout
and stderr live. Keys: s stop, r restart, c clear, y copy, w wrap,
Tab switch pane, g/G top/follow, q quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				pc    process.Config
				title string
				err   error
			)
			if cmd.ArgsLenAtDash() < 0 && len(args) == 1 && flags.shell == "" {
				title = args[0]
				pc, err = a.jobConfig(args[0])
			} else {
				pc, err = a.cfg.BaseProcessConfig(a.logger)
				if err == nil {
					err = flags.commandConfig(&pc, args)
				}
				title = pc.Shell
				if title == "" {
					title = strings.Join(pc.Command, " ")
				}
			}
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, &pc); err != nil {
				return err
			}
			if pc.DiscardOutput {
				return errors.New("watch needs the command's output, discard_output must be off")
			}
			// The viewer owns the terminal, so logs would corrupt it.
			pc.Logger = slog.New(slog.DiscardHandler)
			// The viewer enforces the timeouts so it can stop the child
			// without blocking its event loop.
			timeout, idleTimeout := pc.Timeout, pc.IdleTimeout
			pc.Timeout, pc.IdleTimeout = 0, 0

			ctrl, err := process.New(pc)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			model := ui.New(ctrl, ui.Options{
				Title:           title,
				RefreshInterval: a.cfg.UI.RefreshInterval,
				ShowStats:       a.cfg.UI.ShowStats == nil || *a.cfg.UI.ShowStats,
				Wrap:            a.cfg.UI.Wrap != nil && *a.cfg.UI.Wrap,
				ExitOnFinish:    exit,
				StopGrace:       pc.StopGrace,
				Timeout:         timeout,
				IdleTimeout:     idleTimeout,
			})
			p := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithMouseCellMotion(),
				tea.WithContext(cmd.Context()),
			)
			final, err := p.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			if err := ctrl.Stop(); err != nil {
				return err
			}
			m, ok := final.(ui.Model)
			if !ok {
				return nil
			}
			return exitError(ctrl, m.Err(), cmd.ErrOrStderr())
		},
	}
	flags.register(cmd, true)
	cmd.Flags().BoolVar(&exit, "exit", false, "quit the viewer when the command finishes")
	return cmd
}
