package main

import (
	"fmt"
	"time"

	"github.com/justinpbarnett/procctl/internal/workspace"
	"github.com/spf13/cobra"
)

func newSweepCmd(a *app) *cobra.Command {
	var (
		dir       string
		olderThan time.Duration
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove workspaces left behind by crashed controllers",
		Long: `Remove procctl-* workspace directories older than --older-than whose
lock is not held. Workspaces of live controllers are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("dir") {
				dir = a.cfg.Defaults.TempDir
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = a.cfg.Sweep.OlderThan
			}
			removed, err := workspace.Sweep(dir, olderThan, dryRun)
			out := cmd.OutOrStdout()
			prefix := "removed "
			if dryRun {
				prefix = "[dry-run] would remove "
			}
			for _, d := range removed {
				fmt.Fprintf(out, "  %s%s\n", prefix, d)
			}
			fmt.Fprintf(out, "%d workspace(s)\n", len(removed))
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory holding workspaces (default: defaults.temp_dir or the system temp dir)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only remove workspaces older than this (default: sweep.older_than)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be removed")
	return cmd
}
