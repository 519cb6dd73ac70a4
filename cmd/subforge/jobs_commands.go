package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subforge/internal/jobstore"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage daemon jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsPurgeCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var all bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := client.ListJobs(cmd.Context(), statuses, limit, all)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, list)
			}
			out := cmd.OutOrStdout()
			if len(list.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Stage", "Progress", "Languages", "Mode", "Created"},
				jobRows(list.Jobs, time.Now()),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum jobs to list")
	cmd.Flags().BoolVar(&all, "all", false, "List jobs of every user")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func jobRows(jobs []*jobstore.Job, now time.Time) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			string(job.Status),
			job.Stage,
			fmt.Sprintf("%.0f%%", job.ProgressPercent),
			languagePair(job),
			job.Mode,
			humanAge(now.Sub(job.CreatedAt)),
		})
	}
	return rows
}

func languagePair(job *jobstore.Job) string {
	source := job.SourceLanguage
	if job.DetectedLanguage != "" {
		source = job.DetectedLanguage
	}
	if source == "" {
		source = "auto"
	}
	target := job.TargetLanguage
	if target == "" || target == source {
		return source
	}
	return source + " → " + target
}

func humanAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, job)
			}
			printJob(cmd, job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func printJob(cmd *cobra.Command, job *jobstore.Job) {
	failure := ""
	if job.ErrorKind != "" {
		failure = fmt.Sprintf("%s at %s: %s", job.ErrorKind, job.ErrorStage, job.ErrorMessage)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderFields([][2]string{
		{"ID", job.ID},
		{"User", job.UserID},
		{"Status", string(job.Status)},
		{"Stage", fmt.Sprintf("%s (%.0f%%)", job.Stage, job.ProgressPercent)},
		{"Source", job.Source},
		{"Languages", languagePair(job)},
		{"Mode", job.Mode},
		{"Failure", failure},
		{"Video", job.VideoURL},
		{"Subtitles", job.SubtitleURL},
		{"Transcription", preview(job.Transcription, 160)},
		{"Translation", preview(job.Translation, 160)},
		{"Created", job.CreatedAt.Local().Format(time.DateTime)},
		{"Expires", formatOptionalTime(job.ExpiresAt)},
	}))
}

func preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.CancelJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
			return nil
		},
	}
}

func newJobsPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "purge <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a job and its artifacts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.PurgeJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", args[0])
			return nil
		},
	}
}
