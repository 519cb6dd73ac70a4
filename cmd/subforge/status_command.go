package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"subforge/internal/jobstore"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, health)
			}

			wf := health.Workflow
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderFields([][2]string{
				{"Status", health.Status},
				{"Running", yesNo(wf.Running)},
				{"Engines ready", yesNo(wf.RuntimeReady)},
				{"Transcription", wf.Engines.Transcription},
				{"Translation", wf.Engines.Translation},
				{"Storage", wf.Storage},
				{"Active jobs", fmt.Sprintf("%d / %d", len(wf.ActiveJobs), wf.Capacity)},
				{"Last job", wf.LastJob},
				{"Last error", wf.LastError},
			}))
			if len(wf.JobStats) > 0 {
				rows := make([][]string, 0, len(wf.JobStats))
				for _, status := range []jobstore.Status{jobstore.StatusPending, jobstore.StatusRunning, jobstore.StatusCompleted, jobstore.StatusFailed} {
					if n, ok := wf.JobStats[status]; ok {
						rows = append(rows, []string{string(status), strconv.Itoa(n)})
					}
				}
				fmt.Fprintln(out, renderTable([]string{"Jobs", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			}
			if len(health.Dependencies) > 0 {
				rows := make([][]string, 0, len(health.Dependencies))
				for _, dep := range health.Dependencies {
					state := "ok"
					switch {
					case !dep.Ready && dep.Optional:
						state = "optional"
					case !dep.Ready:
						state = "FAILED"
					}
					rows = append(rows, []string{dep.Name, state, dep.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Dependency", "State", "Detail"}, rows, nil))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}
