package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/physimals/envbuild/internal/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "envbuild",
	Short: "Reproducible provisioning pipelines for imaging toolchains",
	Long: `envbuild builds layered execution environments for scientific
image-processing toolchains from a declarative pipeline definition: version
pins, an ordered list of stages, and an artifact overlay copied in last.

Execution is strictly sequential and fail-fast: the first stage failure halts
the run, later stages never execute, and artifacts are never copied into a
partially provisioned environment. Run history is recorded in
~/.envbuild/envbuild.db.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(pinsCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode maps an error returned by Execute onto a process exit code.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if err != nil {
		return 1
	}
	return 0
}

// loadPipeline loads the pipeline definition from args[0] or the default
// search locations, returning the config and the directory the definition
// file lives in (artifact sources resolve against it).
func loadPipeline(args []string) (*config.PipelineConfig, string, error) {
	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return nil, "", fmt.Errorf("resolve pipeline path: %w", err)
		}
		cfg, err := config.Load(abs)
		if err != nil {
			return nil, "", err
		}
		return cfg, filepath.Dir(abs), nil
	}

	cfg, path, err := config.LoadDefault()
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve pipeline path: %w", err)
	}
	return cfg, filepath.Dir(abs), nil
}
