// Package overlay materializes the artifact overlay: files copied into the
// environment from outside the pipeline, strictly after every stage has
// succeeded, so no stage can observe or mutate them.
package overlay

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/physimals/envbuild/internal/env"
)

// Artifact is one file to copy into the environment.
type Artifact struct {
	Source string // relative to the pipeline definition directory, or absolute
	Dest   string // absolute path inside the environment
}

// Overlay is the ordered set of artifacts for one pipeline definition.
type Overlay struct {
	baseDir   string
	artifacts []Artifact
}

// New creates an Overlay. Relative artifact sources resolve against baseDir,
// the directory containing the pipeline definition file.
func New(baseDir string, artifacts []Artifact) *Overlay {
	return &Overlay{baseDir: baseDir, artifacts: artifacts}
}

// Len returns the number of artifacts.
func (o *Overlay) Len() int {
	return len(o.artifacts)
}

// Materialize copies every artifact to its destination under the handle root.
// A missing source file is a definition error, not a transient fault, and
// fails the run with the offending path.
func (o *Overlay) Materialize(h *env.Handle) error {
	for _, a := range o.artifacts {
		src := a.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(o.baseDir, src)
		}
		if err := copyFile(src, h.Path(a.Dest)); err != nil {
			return fmt.Errorf("artifact %s -> %s: %w", a.Source, a.Dest, err)
		}
	}
	return nil
}

// copyFile copies src to dst, creating parent directories and preserving the
// source file mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("source missing: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dst), err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}
