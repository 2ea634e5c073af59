package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/physimals/envbuild/internal/executor"
	"github.com/physimals/envbuild/internal/ledger"
	"github.com/physimals/envbuild/internal/registry"
	"github.com/physimals/envbuild/internal/stage"
)

var runCmd = &cobra.Command{
	Use:   "run [pipeline.yaml]",
	Short: "Run a provisioning pipeline",
	Long: `Run executes every stage of the pipeline in order and materializes the
artifact overlay after the last stage succeeds.

Exit codes: 0 on success, 1 for definition or usage errors, 2+N when the
stage at ordinal N failed (one past the last ordinal denotes the artifact
overlay). The failing stage's ordinal, name, and reason are printed verbatim.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _ := cmd.Flags().GetString("root")
		timeoutStr, _ := cmd.Flags().GetString("stage-timeout")
		noLedger, _ := cmd.Flags().GetBool("no-ledger")
		quiet, _ := cmd.Flags().GetBool("quiet")

		cfg, baseDir, err := loadPipeline(args)
		if err != nil {
			return err
		}
		if root != "" {
			cfg.Pipeline.EnvRoot = root
		}

		reg := registry.FromPins(cfg.Pipeline.Pins)
		def, err := executor.Build(cfg, reg, baseDir)
		if err != nil {
			return err
		}
		if timeoutStr != "" {
			d, err := time.ParseDuration(timeoutStr)
			if err != nil {
				return fmt.Errorf("invalid --stage-timeout %q: %w", timeoutStr, err)
			}
			def.DefaultTimeout = d
		}

		exec := executor.New(&stage.ExecRunner{})
		if !quiet {
			exec.SetProgress(cmd.ErrOrStderr())
		}

		if !noLedger {
			led, cleanup, err := openLedger()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: run ledger unavailable: %v\n", err)
			} else {
				defer cleanup()
				exec.SetRecorder(led)
			}
		}

		res, err := exec.Run(cmd.Context(), def)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if res.Status == executor.StatusSucceeded {
			artifacts := 0
			if def.Overlay != nil {
				artifacts = def.Overlay.Len()
			}
			fmt.Fprintf(w, "pipeline %q succeeded: %d stages, %d artifacts (run %s)\n",
				res.Pipeline, len(res.Completed), artifacts, res.RunID)
			return nil
		}

		fmt.Fprintf(w, "pipeline %q failed at stage %d (%s): %s\n",
			res.Pipeline, res.FailedOrdinal, res.FailedStage, res.Reason)
		fmt.Fprintf(w, "completed stages: %s (run %s)\n", formatOrdinals(res.Completed), res.RunID)

		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return &ExitError{
			Code:    res.ExitCode(),
			Message: fmt.Sprintf("stage %d (%s): %s", res.FailedOrdinal, res.FailedStage, res.Reason),
		}
	},
}

func init() {
	runCmd.Flags().String("root", "", "Override the environment root directory")
	runCmd.Flags().String("stage-timeout", "", "Default per-stage timeout (e.g. 30m); stage-level timeouts still win")
	runCmd.Flags().Bool("no-ledger", false, "Skip recording the run in the ledger")
	runCmd.Flags().Bool("quiet", false, "Suppress progress output")
}

// openLedger opens and migrates the run ledger at the default path.
func openLedger() (*ledger.Ledger, func(), error) {
	path, err := ledger.DefaultPath()
	if err != nil {
		return nil, nil, err
	}
	led, err := ledger.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if err := led.Migrate(); err != nil {
		led.Close()
		return nil, nil, err
	}
	return led, func() { led.Close() }, nil
}

// formatOrdinals renders completed ordinals as "0, 1, 2" or "none".
func formatOrdinals(ordinals []int) string {
	if len(ordinals) == 0 {
		return "none"
	}
	parts := make([]string, len(ordinals))
	for i, o := range ordinals {
		parts[i] = fmt.Sprintf("%d", o)
	}
	return strings.Join(parts, ", ")
}
