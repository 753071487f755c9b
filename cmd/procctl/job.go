package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/justinpbarnett/procctl/internal/process"
	"github.com/spf13/cobra"
)

func newJobCmd(a *app) *cobra.Command {
	var (
		flags runFlags
		list  bool
	)
	cmd := &cobra.Command{
		Use:   "job NAME",
		Short: "Run a job defined in the config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return listJobs(a, cmd)
			}
			if len(args) == 0 {
				return errors.New("job name required (see --list)")
			}
			pc, err := a.jobConfig(args[0])
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, &pc); err != nil {
				return err
			}
			return stream(cmd.Context(), pc, cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.quiet)
		},
	}
	flags.register(cmd, false)
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "do not print the job's output")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list configured jobs")
	return cmd
}

// jobConfig resolves a named job relative to the config file's directory.
func (a *app) jobConfig(name string) (process.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return process.Config{}, err
	}
	return a.cfg.ProcessConfig(name, a.cfg.BaseDir(cwd), a.logger)
}

func listJobs(a *app, cmd *cobra.Command) error {
	names := a.cfg.JobNames()
	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no jobs configured")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, name := range names {
		job := a.cfg.Jobs[name]
		fmt.Fprintf(w, "%s\t%s\n", name, job.Description)
	}
	return w.Flush()
}
