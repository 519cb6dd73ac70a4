package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"subforge/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var jobID string
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log or a job log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logs.CurrentPath(cfg.Paths.LogDir)
			if id := strings.TrimSpace(jobID); id != "" {
				path = logs.JobPath(cfg.Paths.LogDir, id)
			}
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("no log at %s", path)
				}
				return err
			}

			out := cmd.OutOrStdout()
			tail, offset, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, 0, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "Show the log for this job ID")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}
