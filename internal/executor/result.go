package executor

import "github.com/physimals/envbuild/internal/stage"

// Status is the terminal status of a pipeline run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one pipeline execution. It is created fresh per
// run and holds everything needed to diagnose a failure without re-running:
// the failing stage's ordinal and name plus the underlying reason verbatim.
type Result struct {
	RunID         string         `json:"run_id"`
	Pipeline      string         `json:"pipeline"`
	Status        Status         `json:"status"`
	FailedOrdinal int            `json:"failed_ordinal"` // -1 on success
	FailedStage   string         `json:"failed_stage,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Completed     []int          `json:"completed"` // ordinals of stages that succeeded, in order
	Stages        []stage.Result `json:"stages"`
}

// ExitCode maps the result onto the process exit code contract: 0 for
// success, 2+ordinal for a failure at that stage (an ordinal one past the
// last stage denotes the artifact overlay). Exit code 1 is reserved for
// definition and usage errors, and codes are capped below the shell's
// special range.
func (r *Result) ExitCode() int {
	if r.Status == StatusSucceeded {
		return 0
	}
	if r.FailedOrdinal < 0 {
		return 1
	}
	code := 2 + r.FailedOrdinal
	if code > 125 {
		code = 125
	}
	return code
}
