package main

import (
	"fmt"

	"github.com/justinpbarnett/procctl/internal/update"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version, optionally checking for a newer release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "procctl version %s\n", Version)
			if !check {
				return nil
			}
			if Version == "dev" {
				fmt.Fprintln(out, "Development build, update check skipped.")
				return nil
			}
			rel, err := update.CheckForUpdate(cmd.Context(), Version, update.Repo)
			if err != nil {
				return fmt.Errorf("update check failed: %w", err)
			}
			if rel != nil {
				fmt.Fprintf(out, "Update available: v%s. Run \"procctl update\" to install.\n", rel.Version)
			} else {
				fmt.Fprintln(out, "You are up to date.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub releases for a newer version")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Replace this binary with the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := update.Apply(cmd.Context(), Version, update.Repo)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated to v%s.\n", rel.Version)
			return nil
		},
	}
}
