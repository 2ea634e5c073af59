package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PipelineConfig is the top-level configuration structure parsed from pipeline YAML.
type PipelineConfig struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline defines a full provisioning pipeline: metadata, defaults, version
// pins, the ordered stage list, and the artifact overlay.
type Pipeline struct {
	Name      string         `yaml:"name"`
	EnvRoot   string         `yaml:"env_root"`
	Defaults  StageDefaults  `yaml:"defaults"`
	Pins      map[string]Pin `yaml:"pins"`
	Stages    []Stage        `yaml:"stages"`
	Artifacts []Artifact     `yaml:"artifacts"`
}

// StageDefaults holds default values applied to stages that don't specify their own.
type StageDefaults struct {
	Timeout string `yaml:"timeout"`
}

// Pin pins one dependency to an exact version at definition time. Stages
// reference pins by name instead of hardcoding versions in their actions.
type Pin struct {
	Version string `yaml:"version"`
	Source  string `yaml:"source"`
	Method  string `yaml:"method"`
}

// Stage defines a single provisioning stage.
type Stage struct {
	Name        string            `yaml:"name"`
	Dependency  string            `yaml:"dependency"`
	Requires    []string          `yaml:"requires"`
	Actions     []Action          `yaml:"actions"`
	Env         map[string]string `yaml:"env"`
	Exports     map[string]string `yaml:"exports"`
	SideEffects []string          `yaml:"side_effects"`
	Timeout     string            `yaml:"timeout"`
}

// Action is one shell-equivalent command within a stage. Fetch marks commands
// whose failure means an unavailable network source rather than a broken
// build step.
type Action struct {
	Run   string `yaml:"run"`
	Fetch bool   `yaml:"fetch"`
}

// UnmarshalYAML accepts either a plain scalar command or a mapping with
// run/fetch keys, so simple actions stay one-line in the YAML.
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&a.Run)
	}
	type rawAction Action
	var raw rawAction
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("parsing action: %w", err)
	}
	*a = Action(raw)
	return nil
}

// Artifact is a file copied into the environment after every stage has
// succeeded. Source is resolved relative to the pipeline definition file;
// Dest is an absolute path inside the environment.
type Artifact struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}
