package overlay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/physimals/envbuild/internal/env"
)

func TestMaterializeCopiesArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	root := t.TempDir()

	if err := os.WriteFile(filepath.Join(baseDir, "tool.py"), []byte("print('tool')"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "tool"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(baseDir, "tool", "version.txt"), []byte("3.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	o := New(baseDir, []Artifact{
		{Source: "tool.py", Dest: "/root/tool.py"},
		{Source: "tool/version.txt", Dest: "/root/version.txt"},
	})
	if o.Len() != 2 {
		t.Errorf("Len() = %d, want 2", o.Len())
	}

	if err := o.Materialize(env.New(root)); err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "root/tool.py"))
	if err != nil {
		t.Fatalf("tool.py not copied: %v", err)
	}
	if string(data) != "print('tool')" {
		t.Errorf("tool.py content = %q", data)
	}

	data, err = os.ReadFile(filepath.Join(root, "root/version.txt"))
	if err != nil {
		t.Fatalf("version.txt not copied: %v", err)
	}
	if string(data) != "3.0\n" {
		t.Errorf("version.txt content = %q", data)
	}
}

func TestMaterializePreservesMode(t *testing.T) {
	baseDir := t.TempDir()
	root := t.TempDir()
	os.WriteFile(filepath.Join(baseDir, "run.sh"), []byte("#!/bin/sh\n"), 0o755)

	o := New(baseDir, []Artifact{{Source: "run.sh", Dest: "/opt/run.sh"}})
	if err := o.Materialize(env.New(root)); err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}

	info, err := os.Stat(filepath.Join(root, "opt/run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestMaterializeMissingSource(t *testing.T) {
	o := New(t.TempDir(), []Artifact{{Source: "nonexistent.py", Dest: "/root/tool.py"}})

	err := o.Materialize(env.New(t.TempDir()))
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if !strings.Contains(err.Error(), "nonexistent.py") {
		t.Errorf("error = %v, want offending path included", err)
	}
	if !strings.Contains(err.Error(), "source missing") {
		t.Errorf("error = %v, want source-missing classification", err)
	}
}

func TestMaterializeAbsoluteSource(t *testing.T) {
	srcDir := t.TempDir()
	root := t.TempDir()
	src := filepath.Join(srcDir, "abs.txt")
	os.WriteFile(src, []byte("abs"), 0o644)

	// baseDir deliberately different from the source's directory
	o := New(t.TempDir(), []Artifact{{Source: src, Dest: "/data/abs.txt"}})
	if err := o.Materialize(env.New(root)); err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "data/abs.txt")); err != nil {
		t.Errorf("artifact not copied from absolute source: %v", err)
	}
}

func TestMaterializeOverwritesExisting(t *testing.T) {
	baseDir := t.TempDir()
	root := t.TempDir()
	os.WriteFile(filepath.Join(baseDir, "tool.py"), []byte("new"), 0o644)
	os.MkdirAll(filepath.Join(root, "root"), 0o755)
	os.WriteFile(filepath.Join(root, "root/tool.py"), []byte("old contents that are longer"), 0o644)

	o := New(baseDir, []Artifact{{Source: "tool.py", Dest: "/root/tool.py"}})
	if err := o.Materialize(env.New(root)); err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(root, "root/tool.py"))
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}
}
