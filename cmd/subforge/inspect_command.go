package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"subforge/internal/subtitles"
)

type srtSummary struct {
	Path       string   `json:"path"`
	Cues       int      `json:"cues"`
	FirstStart float64  `json:"firstStartSeconds"`
	LastEnd    float64  `json:"lastEndSeconds"`
	Problems   []string `json:"problems,omitempty"`
}

func summarizeCues(path string, file subtitles.CueFile) srtSummary {
	summary := srtSummary{Path: path, Cues: len(file.Cues)}
	if len(file.Cues) == 0 {
		return summary
	}
	summary.FirstStart = file.Cues[0].Start
	for i, cue := range file.Cues {
		if cue.Sequence != i+1 {
			summary.Problems = append(summary.Problems, fmt.Sprintf("cue %d is numbered %d", i+1, cue.Sequence))
		}
		if cue.End < cue.Start {
			summary.Problems = append(summary.Problems, fmt.Sprintf("cue %d ends before it starts", cue.Sequence))
		}
		if i > 0 && cue.Start < file.Cues[i-1].Start {
			summary.Problems = append(summary.Problems, fmt.Sprintf("cue %d starts before cue %d", cue.Sequence, file.Cues[i-1].Sequence))
		}
		summary.LastEnd = max(summary.LastEnd, cue.End)
	}
	return summary
}

func newInspectCommand() *cobra.Command {
	var jsonOut bool
	var limit int

	cmd := &cobra.Command{
		Use:         "inspect <file.srt>",
		Short:       "Parse an SRT file and report its cues",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := subtitles.ParseFile(args[0])
			if err != nil {
				return err
			}
			summary := summarizeCues(args[0], file)
			if jsonOut {
				return writeJSON(cmd, summary)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderFields([][2]string{
				{"File", summary.Path},
				{"Cues", strconv.Itoa(summary.Cues)},
				{"Span", subtitles.FormatTimestamp(summary.FirstStart) + " → " + subtitles.FormatTimestamp(summary.LastEnd)},
			}))
			rows := make([][]string, 0, len(file.Cues))
			for i, cue := range file.Cues {
				if limit > 0 && i >= limit {
					break
				}
				rows = append(rows, []string{
					strconv.Itoa(cue.Sequence),
					subtitles.FormatTimestamp(cue.Start),
					subtitles.FormatTimestamp(cue.End),
					preview(cue.Text, 60),
				})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable([]string{"#", "Start", "End", "Text"}, rows, []columnAlignment{alignRight}))
			}
			for _, problem := range summary.Problems {
				fmt.Fprintf(out, "warning: %s\n", problem)
			}
			if len(summary.Problems) > 0 {
				return fmt.Errorf("%d problem(s) found", len(summary.Problems))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Cues to print (0 for all)")
	return cmd
}
