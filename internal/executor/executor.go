// Package executor compiles a validated pipeline definition and runs its
// stage graph in order with fail-fast semantics: the first failure halts the
// run, no later stage executes, and the artifact overlay is materialized only
// from a fully succeeded run.
package executor

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/physimals/envbuild/internal/config"
	"github.com/physimals/envbuild/internal/env"
	"github.com/physimals/envbuild/internal/overlay"
	"github.com/physimals/envbuild/internal/registry"
	"github.com/physimals/envbuild/internal/stage"
)

// State is the executor's position in its run state machine.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// AllowedTransition reports whether the state machine may move from one
// state to another. Pending leads into Running (or straight to Failed on
// cancellation before the first stage); Running ends in exactly one of the
// two terminal states.
func AllowedTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateRunning || to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}

// Definition is a compiled, validated pipeline ready to execute. All version
// pins are resolved at build time; execution never consults the registry.
type Definition struct {
	Name           string
	EnvRoot        string
	Stages         []*stage.Stage
	Overlay        *overlay.Overlay
	DefaultTimeout time.Duration
}

// Build compiles a loaded pipeline config against its version pin registry.
// Structural validation errors and unresolvable dependencies both surface
// here, before any stage executes.
func Build(cfg *config.PipelineConfig, reg *registry.Registry, baseDir string) (*Definition, error) {
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid pipeline definition: %s (%d errors total)", errs[0], len(errs))
	}

	p := cfg.Pipeline
	def := &Definition{
		Name:    p.Name,
		EnvRoot: p.EnvRoot,
	}

	if p.Defaults.Timeout != "" {
		d, err := time.ParseDuration(p.Defaults.Timeout)
		if err != nil {
			return nil, fmt.Errorf("defaults.timeout: %w", err)
		}
		def.DefaultTimeout = d
	}

	for i, sc := range p.Stages {
		st := &stage.Stage{
			Ordinal:     i,
			Name:        sc.Name,
			Requires:    sc.Requires,
			Env:         sc.Env,
			Exports:     sortedExports(sc.Exports),
			SideEffects: cleanPaths(sc.SideEffects),
		}

		if sc.Dependency != "" {
			dep, err := reg.Resolve(sc.Dependency)
			if err != nil {
				return nil, fmt.Errorf("stage %d (%s): %w", i, sc.Name, err)
			}
			st.Dependency = &dep
		}

		for _, a := range sc.Actions {
			st.Actions = append(st.Actions, stage.Action{Run: a.Run, Fetch: a.Fetch})
		}

		if sc.Timeout != "" {
			d, err := time.ParseDuration(sc.Timeout)
			if err != nil {
				return nil, fmt.Errorf("stage %d (%s): timeout: %w", i, sc.Name, err)
			}
			st.Timeout = d
		}

		def.Stages = append(def.Stages, st)
	}

	if len(p.Artifacts) > 0 {
		artifacts := make([]overlay.Artifact, 0, len(p.Artifacts))
		for _, a := range p.Artifacts {
			artifacts = append(artifacts, overlay.Artifact{Source: a.Source, Dest: a.Dest})
		}
		def.Overlay = overlay.New(baseDir, artifacts)
	}

	return def, nil
}

// Recorder receives run lifecycle events. Recording is best-effort: the
// pipeline outcome never depends on the recorder.
type Recorder interface {
	RunStarted(runID string, pipeline string, stages int) error
	StageFinished(runID string, res stage.Result) error
	RunFinished(runID string, res *Result) error
}

// Executor runs a Definition's stages in order.
type Executor struct {
	runner   stage.CommandRunner
	recorder Recorder  // nil = no recording
	progress io.Writer // nil = silent
}

// New creates an Executor using the given command runner.
func New(runner stage.CommandRunner) *Executor {
	return &Executor{runner: runner}
}

// SetRecorder sets an optional run recorder (e.g. the SQLite ledger).
func (e *Executor) SetRecorder(r Recorder) {
	e.recorder = r
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Executor) SetProgress(w io.Writer) {
	e.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (e *Executor) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// Run executes every stage in order against a fresh handle. The first
// failure halts the run; stages after it never execute, and artifacts are
// never copied into a partially failed environment. Cancellation via ctx is
// honored between stages only: an in-flight external build is not assumed
// interruptible, beyond the per-stage timeout killing its process.
func (e *Executor) Run(ctx context.Context, def *Definition) (*Result, error) {
	if def == nil || len(def.Stages) == 0 {
		return nil, fmt.Errorf("empty pipeline definition")
	}

	res := &Result{
		RunID:         uuid.NewString(),
		Pipeline:      def.Name,
		FailedOrdinal: -1,
		Completed:     []int{},
	}
	h := env.New(def.EnvRoot)

	st := StatePending
	move := func(to State) {
		if !AllowedTransition(st, to) {
			panic(fmt.Sprintf("invalid executor transition %s -> %s", st, to))
		}
		st = to
	}

	if e.recorder != nil {
		_ = e.recorder.RunStarted(res.RunID, def.Name, len(def.Stages))
	}
	e.logf("run %s: %d stages, root %s", res.RunID, len(def.Stages), def.EnvRoot)

	for _, s := range def.Stages {
		if err := ctx.Err(); err != nil {
			return e.fail(res, move, s.Ordinal, s.Name,
				fmt.Sprintf("canceled before stage %d (%s): %v", s.Ordinal, s.Name, err)), nil
		}

		move(StateRunning)
		e.logf("stage %d (%s): %d actions", s.Ordinal, s.Name, len(s.Actions))

		sctx := ctx
		cancel := func() {}
		if timeout := stageTimeout(s, def.DefaultTimeout); timeout > 0 {
			sctx, cancel = context.WithTimeout(ctx, timeout)
		}

		start := time.Now()
		ferr := s.Execute(sctx, h, e.runner)
		cancel()

		sres := stage.Result{
			Ordinal:    s.Ordinal,
			Name:       s.Name,
			DurationMs: int(time.Since(start).Milliseconds()),
			Failure:    ferr,
		}
		res.Stages = append(res.Stages, sres)
		if e.recorder != nil {
			_ = e.recorder.StageFinished(res.RunID, sres)
		}

		if ferr != nil {
			e.logf("stage %d (%s) failed: %s", s.Ordinal, s.Name, ferr)
			return e.fail(res, move, s.Ordinal, s.Name, ferr.Error()), nil
		}

		for _, ex := range s.Exports {
			h.Export(ex.Key, ex.Value)
		}
		res.Completed = append(res.Completed, s.Ordinal)
		e.logf("stage %d (%s) succeeded (%dms)", s.Ordinal, s.Name, sres.DurationMs)
	}

	if def.Overlay != nil {
		e.logf("materializing %d artifacts", def.Overlay.Len())
		if err := def.Overlay.Materialize(h); err != nil {
			return e.fail(res, move, len(def.Stages), "artifact-overlay", err.Error()), nil
		}
	}

	move(StateSucceeded)
	res.Status = StatusSucceeded
	if e.recorder != nil {
		_ = e.recorder.RunFinished(res.RunID, res)
	}
	e.logf("run %s succeeded", res.RunID)
	return res, nil
}

// fail records the terminal failure state on the result.
func (e *Executor) fail(res *Result, move func(State), ordinal int, stageName, reason string) *Result {
	move(StateFailed)
	res.Status = StatusFailed
	res.FailedOrdinal = ordinal
	res.FailedStage = stageName
	res.Reason = reason
	if e.recorder != nil {
		_ = e.recorder.RunFinished(res.RunID, res)
	}
	return res
}

// stageTimeout picks the stage's own timeout over the pipeline default.
func stageTimeout(s *stage.Stage, def time.Duration) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return def
}

// sortedExports flattens an export map into deterministic key order.
func sortedExports(m map[string]string) []stage.Export {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	exports := make([]stage.Export, 0, len(keys))
	for _, k := range keys {
		exports = append(exports, stage.Export{Key: k, Value: m[k]})
	}
	return exports
}

// cleanPaths normalizes declared side-effect paths.
func cleanPaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, path.Clean(p))
	}
	return out
}
