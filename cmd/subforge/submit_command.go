package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"subforge/internal/api"
	"subforge/internal/jobstore"
	"subforge/internal/language"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req api.SubmitRequest
	var wait bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "submit <file|url>",
		Short: "Queue a job on the running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			if !isRemote(source) {
				if _, err := os.Stat(source); err != nil {
					return fmt.Errorf("source: %w", err)
				}
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Submit(cmd.Context(), source, req)
			if err != nil {
				return err
			}
			if !wait {
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s accepted\n", resp.JobID)
				return nil
			}
			job, err := waitForJob(cmd, client, resp.JobID)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, job)
			}
			printJob(cmd, job)
			if job.Status == jobstore.StatusFailed {
				return fmt.Errorf("job %s failed: %s", job.ID, job.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.SourceLanguage, "source", "s", "", "Source language")
	cmd.Flags().StringVarP(&req.TargetLanguage, "target", "t", language.Auto, "Target language (auto keeps the source language)")
	cmd.Flags().StringVarP(&req.Mode, "mode", "m", "", "Embed mode: burn or soft")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Stream progress until the job finishes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

// waitForJob follows the event stream and returns the final job snapshot.
func waitForJob(cmd *cobra.Command, client *apiClient, id string) (*jobstore.Job, error) {
	printer := newProgressPrinter(cmd.ErrOrStderr())
	var final *jobstore.Job
	err := client.Events(cmd.Context(), id, func(ev api.Event) error {
		switch ev.Type {
		case "progress":
			if ev.Progress != nil {
				printer.OnProgress(*ev.Progress)
			}
		case "status":
			final = ev.Job
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if final == nil {
		return client.GetJob(cmd.Context(), id)
	}
	return final, nil
}
