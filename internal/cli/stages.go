package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var stagesCmd = &cobra.Command{
	Use:   "stages [pipeline.yaml]",
	Short: "List the stages of a pipeline definition in execution order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, _, err := loadPipeline(args)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-4s %-20s %-16s %-8s %s\n", "ORD", "STAGE", "DEPENDENCY", "ACTIONS", "TIMEOUT")
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 64))
		for i, s := range cfg.Pipeline.Stages {
			dep := s.Dependency
			if dep == "" {
				dep = "-"
			}
			timeout := s.Timeout
			if timeout == "" {
				timeout = "-"
			}
			fmt.Fprintf(w, "%-4d %-20s %-16s %-8d %s\n", i, s.Name, dep, len(s.Actions), timeout)

			if verbose {
				for _, req := range s.Requires {
					fmt.Fprintf(w, "       requires    %s\n", req)
				}
				for _, se := range s.SideEffects {
					fmt.Fprintf(w, "       side-effect %s\n", se)
				}
			}
		}
		return nil
	},
}

func init() {
	stagesCmd.Flags().Bool("verbose", false, "Show declared preconditions and side effects")
}
