package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/physimals/envbuild/internal/config"
	"github.com/physimals/envbuild/internal/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate [pipeline.yaml]",
	Short: "Validate a pipeline definition without running it",
	Long: `Validate checks the pipeline definition for structural errors and
resolves every stage dependency against the version pins. All problems are
reported at once, before anything would execute.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadPipeline(args)
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)

		// Dependency resolution errors beyond structural ones: every stage
		// dependency must resolve to exactly one pin.
		reg := registry.FromPins(cfg.Pipeline.Pins)
		for i, s := range cfg.Pipeline.Stages {
			if s.Dependency == "" {
				continue
			}
			if _, err := reg.Resolve(s.Dependency); err != nil {
				errs = append(errs, config.ValidationError{
					Field:   fmt.Sprintf("pipeline.stages[%d].dependency", i),
					Message: err.Error(),
				})
			}
		}

		w := cmd.OutOrStdout()
		if len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(w, "  - %s\n", e)
			}
			cmd.SilenceUsage = true
			return fmt.Errorf("pipeline definition has %d errors", len(errs))
		}

		fmt.Fprintf(w, "definition OK: %d stages, %d pins, %d artifacts\n",
			len(cfg.Pipeline.Stages), len(cfg.Pipeline.Pins), len(cfg.Pipeline.Artifacts))
		return nil
	},
}
