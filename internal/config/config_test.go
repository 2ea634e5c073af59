package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validPipeline = `
pipeline:
  name: imaging-env
  env_root: /
  defaults:
    timeout: "30m"
  pins:
    build-deps:
      version: "bookworm-20240901"
      source: "http://deb.debian.org/debian"
      method: system-package
    converter:
      version: "v1.0.20211006"
      source: "https://github.com/rordenlab/dcm2niix.git"
      method: source-build
  stages:
    - name: system-packages
      dependency: build-deps
      actions:
        - run: apt-get update
          fetch: true
        - apt-get install -y cmake git
      side_effects:
        - /usr/bin/cmake
        - /usr/bin/git
    - name: build-converter
      dependency: converter
      requires:
        - /usr/bin/cmake
      actions:
        - rm -rf /tmp/src
        - run: git clone --branch ${version} ${source} /tmp/src
          fetch: true
        - cmake --build /tmp/src/build --target install
      side_effects:
        - /usr/local/bin/dcm2niix
      timeout: "10m"
  artifacts:
    - source: tool/tool.py
      dest: /root/tool.py
`

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidPipeline(t *testing.T) {
	path := writePipeline(t, validPipeline)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Pipeline.Name != "imaging-env" {
		t.Errorf("Name = %q, want %q", cfg.Pipeline.Name, "imaging-env")
	}
	if len(cfg.Pipeline.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(cfg.Pipeline.Stages))
	}
	if len(cfg.Pipeline.Pins) != 2 {
		t.Errorf("len(Pins) = %d, want 2", len(cfg.Pipeline.Pins))
	}
	if len(cfg.Pipeline.Artifacts) != 1 {
		t.Errorf("len(Artifacts) = %d, want 1", len(cfg.Pipeline.Artifacts))
	}
}

func TestActionScalarAndMappingForms(t *testing.T) {
	path := writePipeline(t, validPipeline)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	actions := cfg.Pipeline.Stages[0].Actions
	if len(actions) != 2 {
		t.Fatalf("len(Actions) = %d, want 2", len(actions))
	}
	if actions[0].Run != "apt-get update" || !actions[0].Fetch {
		t.Errorf("actions[0] = %+v, want fetch apt-get update", actions[0])
	}
	if actions[1].Run != "apt-get install -y cmake git" || actions[1].Fetch {
		t.Errorf("actions[1] = %+v, want plain install command", actions[1])
	}
}

func TestDefaultsMerge(t *testing.T) {
	path := writePipeline(t, validPipeline)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// system-packages has no timeout and should inherit the default
	if got := cfg.Pipeline.Stages[0].Timeout; got != "30m" {
		t.Errorf("Stages[0].Timeout = %q, want %q (from defaults)", got, "30m")
	}

	// build-converter has an explicit timeout that must not be overridden
	if got := cfg.Pipeline.Stages[1].Timeout; got != "10m" {
		t.Errorf("Stages[1].Timeout = %q, want %q (explicit)", got, "10m")
	}
}

func TestEnvRootDefault(t *testing.T) {
	yaml := `
pipeline:
  name: test
  pins: {}
  stages:
    - name: s1
      actions:
        - "true"
`
	path := writePipeline(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Pipeline.EnvRoot != "/" {
		t.Errorf("EnvRoot = %q, want %q", cfg.Pipeline.EnvRoot, "/")
	}
}

func TestValidateValidPipeline(t *testing.T) {
	path := writePipeline(t, validPipeline)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	if len(errs) != 0 {
		t.Errorf("Validate() returned %d errors for valid pipeline:", len(errs))
		for _, e := range errs {
			t.Errorf("  - %s", e)
		}
	}
}

func TestValidateMissingName(t *testing.T) {
	yaml := `
pipeline:
  stages:
    - name: s1
      actions:
        - "true"
`
	assertValidationError(t, yaml, "pipeline.name", "is required")
}

func TestValidateEmptyStages(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages: []
`
	assertValidationError(t, yaml, "pipeline.stages", "at least one stage")
}

func TestValidateDuplicateStageNames(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: dup
      actions: ["true"]
    - name: dup
      actions: ["true"]
`
	assertValidationError(t, yaml, "", "duplicate stage name")
}

func TestValidateUnknownDependencyReference(t *testing.T) {
	yaml := `
pipeline:
  name: test
  pins:
    fsl:
      version: "6.0.6"
      method: source-script
      source: "https://example.com/installer.py"
  stages:
    - name: s1
      dependency: nonexistent
      actions: ["true"]
`
	assertValidationError(t, yaml, "", "unknown dependency")
}

func TestValidatePinMissingVersion(t *testing.T) {
	yaml := `
pipeline:
  name: test
  pins:
    fsl:
      method: source-script
      source: "https://example.com/installer.py"
  stages:
    - name: s1
      actions: ["true"]
`
	assertValidationError(t, yaml, "pipeline.pins.fsl.version", "is required")
}

func TestValidateUnrecognizedMethod(t *testing.T) {
	yaml := `
pipeline:
  name: test
  pins:
    fsl:
      version: "6.0.6"
      method: carrier-pigeon
  stages:
    - name: s1
      actions: ["true"]
`
	assertValidationError(t, yaml, "", "unrecognized install method")
}

func TestValidateSourceRequiredForSourceBuild(t *testing.T) {
	yaml := `
pipeline:
  name: test
  pins:
    converter:
      version: "v1.0"
      method: source-build
  stages:
    - name: s1
      actions: ["true"]
`
	assertValidationError(t, yaml, "pipeline.pins.converter.source", "is required")
}

func TestValidateEmptyAction(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: s1
      actions:
        - "  "
`
	assertValidationError(t, yaml, "", "command is empty")
}

func TestValidateUnknownPlaceholder(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: s1
      actions:
        - "echo ${bogus}"
`
	assertValidationError(t, yaml, "", "unknown placeholder")
}

func TestValidatePinPlaceholderWithoutDependency(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: s1
      actions:
        - "echo ${version}"
`
	assertValidationError(t, yaml, "", "requires the stage to declare a dependency")
}

func TestValidateRootPlaceholderAlwaysAllowed(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: s1
      actions:
        - "touch ${root}/marker"
`
	path := writePipeline(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateRelativeSideEffectPath(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: s1
      actions: ["true"]
      side_effects:
        - usr/bin/tool
`
	assertValidationError(t, yaml, "", "must be absolute")
}

func TestValidateInvalidTimeout(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: s1
      actions: ["true"]
      timeout: "soon"
`
	assertValidationError(t, yaml, "", "invalid duration")
}

func TestValidateArtifactCollision(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: install
      actions: ["true"]
      side_effects:
        - /usr/local/fsl
  artifacts:
    - source: tool/settings.json
      dest: /usr/local/fsl/etc/settings.json
`
	assertValidationError(t, yaml, "", "collides with side effect")
}

func TestValidateDuplicateArtifactDest(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: s1
      actions: ["true"]
  artifacts:
    - source: a.txt
      dest: /root/tool.py
    - source: b.txt
      dest: /root/tool.py
`
	assertValidationError(t, yaml, "", "duplicate destination")
}

func TestValidateArtifactRelativeDest(t *testing.T) {
	yaml := `
pipeline:
  name: test
  stages:
    - name: s1
      actions: ["true"]
  artifacts:
    - source: a.txt
      dest: root/tool.py
`
	assertValidationError(t, yaml, "", "must be an absolute path")
}

func TestPathsCollide(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"/usr/local/fsl", "/usr/local/fsl", true},
		{"/usr/local/fsl/etc/f.txt", "/usr/local/fsl", true},
		{"/usr/local/fsl", "/usr/local/fsl/etc/f.txt", true},
		{"/usr/local/fsl", "/usr/local/fslextra", false},
		{"/root/tool.py", "/usr/local/fsl", false},
	}
	for _, c := range cases {
		if got := pathsCollide(c.a, c.b); got != c.want {
			t.Errorf("pathsCollide(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writePipeline(t, "not: [valid: yaml: !!!")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/pipeline.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadDefaultNotFound(t *testing.T) {
	orig, _ := os.Getwd()
	dir := t.TempDir()
	os.Chdir(dir)
	defer os.Chdir(orig)
	t.Setenv("HOME", dir)

	if _, _, err := LoadDefault(); err == nil {
		t.Error("expected error when no pipeline definition found")
	}
}

func TestLoadDefaultFromCurrentDir(t *testing.T) {
	orig, _ := os.Getwd()
	dir := t.TempDir()
	os.Chdir(dir)
	defer os.Chdir(orig)

	content := `
pipeline:
  name: local
  stages:
    - name: s1
      actions: ["true"]
`
	os.WriteFile(filepath.Join(dir, "pipeline.yaml"), []byte(content), 0644)

	cfg, path, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if cfg.Pipeline.Name != "local" {
		t.Errorf("Name = %q, want %q", cfg.Pipeline.Name, "local")
	}
	if path != "pipeline.yaml" {
		t.Errorf("path = %q, want %q", path, "pipeline.yaml")
	}
}

func TestValidateRecognizedMethods(t *testing.T) {
	methods := []string{"system-package", "source-build", "source-script", "package-index"}
	for _, method := range methods {
		yaml := `
pipeline:
  name: test
  pins:
    dep:
      version: "1.0"
      source: "https://example.com/dep"
      method: ` + method + `
  stages:
    - name: s1
      actions: ["true"]
`
		path := writePipeline(t, yaml)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error for method %q: %v", method, err)
		}
		for _, e := range Validate(cfg) {
			if strings.Contains(e.Message, "unrecognized install method") {
				t.Errorf("method %q should be recognized but got error: %s", method, e)
			}
		}
	}
}

// assertValidationError loads the YAML and asserts a validation error whose
// field (if given) and message match.
func assertValidationError(t *testing.T, yaml, wantField, wantMessage string) {
	t.Helper()
	path := writePipeline(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	for _, e := range errs {
		if wantField != "" && e.Field != wantField {
			continue
		}
		if strings.Contains(e.Message, wantMessage) {
			return
		}
	}
	t.Errorf("expected validation error containing %q (field %q), got: %v", wantMessage, wantField, errs)
}
