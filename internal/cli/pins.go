package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/physimals/envbuild/internal/registry"
)

var pinsCmd = &cobra.Command{
	Use:   "pins [pipeline.yaml]",
	Short: "List the version pins of a pipeline definition",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadPipeline(args)
		if err != nil {
			return err
		}

		reg := registry.FromPins(cfg.Pipeline.Pins)
		names := reg.Names()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pins defined.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-16s %-20s %-16s %s\n", "NAME", "VERSION", "METHOD", "SOURCE")
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 80))
		for _, name := range names {
			dep, err := reg.Resolve(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%-16s %-20s %-16s %s\n", dep.Name, dep.Version, dep.Method, dep.Source)
		}
		return nil
	},
}
