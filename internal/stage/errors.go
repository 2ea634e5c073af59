package stage

import "fmt"

// FailureKind classifies stage failures so callers can decide retryability
// without string matching.
type FailureKind string

const (
	// FetchFailure means a network source was unavailable. The caller may
	// retry the whole pipeline from scratch; there is no mid-pipeline retry.
	FetchFailure FailureKind = "FetchFailure"
	// BuildFailure means a compile or install step exited non-zero. Fatal.
	BuildFailure FailureKind = "BuildFailure"
	// PreconditionViolation means a required prior artifact is missing,
	// which indicates an authoring bug in stage ordering. Fatal.
	PreconditionViolation FailureKind = "PreconditionViolation"
	// Timeout means the caller-supplied per-stage timeout expired. Fatal for
	// the current run.
	Timeout FailureKind = "Timeout"
)

// Error is a stage failure. Stages never catch and suppress their own
// failures; the error propagates to the executor unmodified, with Reason
// carrying the underlying cause verbatim.
type Error struct {
	Kind    FailureKind
	Ordinal int
	Stage   string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}
