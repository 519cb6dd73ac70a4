package main

import (
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"subforge/internal/staging"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var force bool
	var list bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale job workspaces from the staging directory",
		Long: "Remove workspace directories older than the retention window. The daemon sweeps on its own\n" +
			"schedule, so this refuses to run while subforged holds the state lock unless --force is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !force && !list {
				lock := flock.New(cfg.LockPath())
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("check daemon lock: %w", err)
				}
				if !locked {
					return fmt.Errorf("subforged is running (lock %s); it sweeps workspaces itself, use --force to override", cfg.LockPath())
				}
				defer func() { _ = lock.Unlock() }()
			}
			maxAge := olderThan
			if maxAge <= 0 {
				maxAge = cfg.Retention()
			}
			if list {
				return listWorkspaces(cmd, cfg.Paths.StagingDir, maxAge)
			}
			logger, err := cliLogger(cfg, false)
			if err != nil {
				return err
			}

			result := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, maxAge, nil, logger)
			out := cmd.OutOrStdout()
			for _, path := range result.Removed {
				fmt.Fprintf(out, "removed %s\n", path)
			}
			for _, cerr := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s: %v\n", cerr.Path, cerr.Error)
			}
			fmt.Fprintf(out, "Removed %d workspace(s), kept %d\n", len(result.Removed), len(result.Skipped))
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d workspace(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold (default pipeline.retention_hours)")
	cmd.Flags().BoolVar(&force, "force", false, "Run even while the daemon is active")
	cmd.Flags().BoolVar(&list, "list", false, "List workspaces and their age without removing anything")
	return cmd
}

func listWorkspaces(cmd *cobra.Command, stagingDir string, maxAge time.Duration) error {
	dirs, err := staging.ListDirectories(stagingDir)
	if err != nil {
		return fmt.Errorf("list staging directory: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(dirs) == 0 {
		fmt.Fprintln(out, "No workspaces")
		return nil
	}
	now := time.Now()
	rows := make([][]string, 0, len(dirs))
	for _, dir := range dirs {
		age := now.Sub(dir.ModTime)
		rows = append(rows, []string{
			dir.Name,
			humanAge(age),
			fmt.Sprintf("%.1f MB", float64(dir.Size)/1_048_576),
			yesNo(age > maxAge),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Workspace", "Modified", "Size", "Stale"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
	return nil
}
