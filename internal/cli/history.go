package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded pipeline runs, or per-stage detail for one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		led, cleanup, err := openLedger()
		if err != nil {
			return err
		}
		defer cleanup()

		w := cmd.OutOrStdout()

		if len(args) == 1 {
			runID := args[0]
			run, err := led.GetRun(runID)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %q not found", runID)
			}

			fmt.Fprintf(w, "Run:      %s\n", run.RunID)
			fmt.Fprintf(w, "Pipeline: %s\n", run.Pipeline)
			fmt.Fprintf(w, "Status:   %s\n", run.Status)
			if run.FailedOrdinal != nil {
				fmt.Fprintf(w, "Failed:   stage %d (%s): %s\n", *run.FailedOrdinal, run.FailedStage, run.Reason)
			}
			fmt.Fprintf(w, "Started:  %s\n", run.StartedAt)
			if run.FinishedAt != "" {
				fmt.Fprintf(w, "Finished: %s\n", run.FinishedAt)
			}

			stageRuns, err := led.GetStageRuns(runID)
			if err != nil {
				return err
			}
			if len(stageRuns) > 0 {
				fmt.Fprintf(w, "\n%-4s %-20s %-10s %-22s %-10s %s\n", "ORD", "STAGE", "STATUS", "KIND", "DURATION", "REASON")
				fmt.Fprintf(w, "%s\n", strings.Repeat("-", 90))
				for _, s := range stageRuns {
					kind := s.Kind
					if kind == "" {
						kind = "-"
					}
					fmt.Fprintf(w, "%-4d %-20s %-10s %-22s %-10s %s\n",
						s.Ordinal, s.Stage, s.Status, kind, fmt.Sprintf("%dms", s.DurationMs), s.Reason)
				}
			}
			return nil
		}

		runs, err := led.GetRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}

		fmt.Fprintf(w, "%-36s %-16s %-10s %-20s %s\n", "RUN", "PIPELINE", "STATUS", "STARTED", "DETAIL")
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 100))
		for _, r := range runs {
			detail := ""
			if r.FailedOrdinal != nil {
				detail = fmt.Sprintf("stage %d (%s): %s", *r.FailedOrdinal, r.FailedStage, r.Reason)
			}
			fmt.Fprintf(w, "%-36s %-16s %-10s %-20s %s\n", r.RunID, r.Pipeline, r.Status, r.StartedAt, detail)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list")
}
