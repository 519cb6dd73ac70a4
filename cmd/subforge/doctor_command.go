package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subforge/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, binaries, credentials, and engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var results []preflight.Result
			if offline {
				results = preflight.RunLocal(cfg)
			} else {
				results = preflight.RunAll(cmd.Context(), cfg)
			}
			failed := preflight.Failed(results)
			if jsonOut {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.Name, checkState(r), r.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "State", "Detail"}, rows, nil))
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that contact remote engines")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func checkState(r preflight.Result) string {
	switch {
	case r.Passed:
		return "ok"
	case r.Optional:
		return "optional"
	default:
		return "FAILED"
	}
}
