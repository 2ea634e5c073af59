// Package stage models and executes a single provisioning stage: an ordered
// list of shell-equivalent actions run against the environment handle.
// Stages are idempotent-or-fail units: re-running against an already
// provisioned environment either no-ops (package managers) or fails loudly
// (source builds into a cleaned temp directory), never silently duplicates
// work.
package stage

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/physimals/envbuild/internal/env"
	"github.com/physimals/envbuild/internal/registry"
)

// Stage is one ordered unit of environment provisioning work.
type Stage struct {
	Ordinal     int
	Name        string
	Dependency  *registry.Dependency // nil for pure environment setup stages
	Requires    []string             // in-environment paths that must exist before the stage runs
	Actions     []Action
	Env         map[string]string // explicit stage-local variables, never read ad hoc from the process
	Exports     []Export          // variables the stage contributes to the handle on success
	SideEffects []string          // paths the stage is permitted to create or modify
	Timeout     time.Duration     // 0 = use the executor's default
}

// Action is one shell-equivalent command. Fetch actions fail with
// FetchFailure instead of BuildFailure.
type Action struct {
	Run   string
	Fetch bool
}

// Export is one environment variable contributed by a stage. Kept as an
// ordered slice so export application is deterministic.
type Export struct {
	Key   string
	Value string
}

// Result captures the outcome of one stage execution.
type Result struct {
	Ordinal    int    `json:"ordinal"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	Failure    *Error `json:"failure,omitempty"`
}

// Execute runs the stage's actions in order against the environment handle.
// It returns nil on success or the first failure, unmodified. Preconditions
// are checked before any action runs.
func (s *Stage) Execute(ctx context.Context, h *env.Handle, runner CommandRunner) *Error {
	for _, req := range s.Requires {
		if _, err := os.Stat(h.Path(req)); err != nil {
			return s.failf(PreconditionViolation, "required path %s is missing (expected output of a prior stage)", req)
		}
	}

	extraEnv := s.environ(h)

	for _, a := range s.Actions {
		command := s.expand(a.Run, h)
		_, stderr, exitCode, err := runner.Run(ctx, h.Root(), command, extraEnv)

		if ctx.Err() == context.DeadlineExceeded {
			return s.failf(Timeout, "command %q exceeded the stage timeout", command)
		}
		if ctx.Err() != nil {
			return s.failf(BuildFailure, "command %q canceled before completion: %v", command, ctx.Err())
		}
		if err != nil {
			return s.failf(BuildFailure, "command %q: %v", command, err)
		}
		if exitCode != 0 {
			kind := BuildFailure
			if a.Fetch {
				kind = FetchFailure
			}
			reason := fmt.Sprintf("command %q exited %d", command, exitCode)
			if tail := tail(stderr); tail != "" {
				reason += ": " + tail
			}
			return s.failf(kind, "%s", reason)
		}
	}

	return nil
}

// environ combines the handle's accumulated exports with the stage's own
// variables, stage-local values last so they win.
func (s *Stage) environ(h *env.Handle) []string {
	pairs := h.Environ()

	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, k+"="+s.Env[k])
	}
	return pairs
}

// expand substitutes ${root} and, when the stage has a dependency, ${name},
// ${version} and ${source} from the resolved pin. Unknown placeholders are
// rejected at definition-validation time.
func (s *Stage) expand(command string, h *env.Handle) string {
	return os.Expand(command, func(key string) string {
		switch key {
		case "root":
			return h.Root()
		case "name":
			if s.Dependency != nil {
				return s.Dependency.Name
			}
		case "version":
			if s.Dependency != nil {
				return s.Dependency.Version
			}
		case "source":
			if s.Dependency != nil {
				return s.Dependency.Source
			}
		}
		return ""
	})
}

func (s *Stage) failf(kind FailureKind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Ordinal: s.Ordinal,
		Stage:   s.Name,
		Reason:  fmt.Sprintf(format, args...),
	}
}

// tail returns the last portion of command output, enough to diagnose a
// failure without re-running.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const max = 400
	if len(s) > max {
		s = "..." + s[len(s)-max:]
	}
	return s
}
