package config

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// ValidationError represents a single validation issue with a pipeline definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedMethods is the set of valid install methods for pins.
var recognizedMethods = map[string]bool{
	"system-package": true,
	"source-build":   true,
	"source-script":  true,
	"package-index":  true,
}

// placeholderRe matches ${var} placeholders in action commands.
var placeholderRe = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Validate checks a PipelineConfig for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
// Every error reported here is a definition bug, caught before any stage runs.
func Validate(cfg *PipelineConfig) []ValidationError {
	var errs []ValidationError
	p := cfg.Pipeline

	if p.Name == "" {
		errs = append(errs, ValidationError{Field: "pipeline.name", Message: "is required"})
	}
	if p.EnvRoot != "" && !path.IsAbs(p.EnvRoot) {
		errs = append(errs, ValidationError{Field: "pipeline.env_root", Message: "must be an absolute path"})
	}
	if len(p.Stages) == 0 {
		errs = append(errs, ValidationError{Field: "pipeline.stages", Message: "at least one stage is required"})
	}
	if p.Defaults.Timeout != "" {
		if _, err := time.ParseDuration(p.Defaults.Timeout); err != nil {
			errs = append(errs, ValidationError{Field: "pipeline.defaults.timeout", Message: fmt.Sprintf("invalid duration %q", p.Defaults.Timeout)})
		}
	}

	validatePins(p, &errs)

	stageNames := make(map[string]bool)
	for i, s := range p.Stages {
		prefix := fmt.Sprintf("pipeline.stages[%d]", i)

		if s.Name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
		} else if stageNames[s.Name] {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate stage name %q", s.Name)})
		}
		stageNames[s.Name] = true

		if s.Dependency != "" {
			if _, ok := p.Pins[s.Dependency]; !ok {
				errs = append(errs, ValidationError{
					Field:   prefix + ".dependency",
					Message: fmt.Sprintf("unknown dependency %q: not present in pins", s.Dependency),
				})
			}
		}

		if len(s.Actions) == 0 {
			errs = append(errs, ValidationError{Field: prefix + ".actions", Message: "at least one action is required"})
		}
		for j, a := range s.Actions {
			if strings.TrimSpace(a.Run) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.actions[%d]", prefix, j),
					Message: "command is empty",
				})
				continue
			}
			validatePlaceholders(a.Run, s.Dependency != "", fmt.Sprintf("%s.actions[%d]", prefix, j), &errs)
		}

		for _, list := range []struct {
			name  string
			paths []string
		}{
			{"requires", s.Requires},
			{"side_effects", s.SideEffects},
		} {
			for _, pth := range list.paths {
				if !path.IsAbs(pth) {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s.%s", prefix, list.name),
						Message: fmt.Sprintf("path %q must be absolute", pth),
					})
				}
			}
		}

		if s.Timeout != "" {
			if _, err := time.ParseDuration(s.Timeout); err != nil {
				errs = append(errs, ValidationError{
					Field:   prefix + ".timeout",
					Message: fmt.Sprintf("invalid duration %q", s.Timeout),
				})
			}
		}
	}

	validateArtifacts(p, &errs)

	return errs
}

// validatePins checks every pin is fully specified with a recognized install method.
func validatePins(p Pipeline, errs *[]ValidationError) {
	for name, pin := range p.Pins {
		prefix := fmt.Sprintf("pipeline.pins.%s", name)
		if pin.Version == "" {
			*errs = append(*errs, ValidationError{Field: prefix + ".version", Message: "is required: pins must resolve to exactly one version"})
		}
		if pin.Method == "" {
			*errs = append(*errs, ValidationError{Field: prefix + ".method", Message: "is required"})
		} else if !recognizedMethods[pin.Method] {
			*errs = append(*errs, ValidationError{Field: prefix + ".method", Message: fmt.Sprintf("unrecognized install method %q", pin.Method)})
		}
		if pin.Source == "" && (pin.Method == "source-build" || pin.Method == "source-script") {
			*errs = append(*errs, ValidationError{Field: prefix + ".source", Message: fmt.Sprintf("is required for method %q", pin.Method)})
		}
	}
}

// validatePlaceholders rejects ${var} references outside the supported set.
// name/version/source expand from the stage's resolved pin, so they are only
// available on stages that declare a dependency.
func validatePlaceholders(command string, hasDependency bool, field string, errs *[]ValidationError) {
	for _, m := range placeholderRe.FindAllStringSubmatch(command, -1) {
		switch v := m[1]; v {
		case "root":
		case "name", "version", "source":
			if !hasDependency {
				*errs = append(*errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("placeholder ${%s} requires the stage to declare a dependency", v),
				})
			}
		default:
			*errs = append(*errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown placeholder ${%s}", v),
			})
		}
	}
}

// validateArtifacts checks artifact fields and destination ownership: an
// artifact destination that collides with a stage's declared side effects
// would be observed (or clobbered) by that stage, which the overlay contract
// forbids.
func validateArtifacts(p Pipeline, errs *[]ValidationError) {
	seen := make(map[string]bool)
	for i, a := range p.Artifacts {
		prefix := fmt.Sprintf("pipeline.artifacts[%d]", i)
		if a.Source == "" {
			*errs = append(*errs, ValidationError{Field: prefix + ".source", Message: "is required"})
		}
		if a.Dest == "" {
			*errs = append(*errs, ValidationError{Field: prefix + ".dest", Message: "is required"})
			continue
		}
		if !path.IsAbs(a.Dest) {
			*errs = append(*errs, ValidationError{Field: prefix + ".dest", Message: "must be an absolute path"})
		}
		if seen[a.Dest] {
			*errs = append(*errs, ValidationError{Field: prefix + ".dest", Message: fmt.Sprintf("duplicate destination %q", a.Dest)})
		}
		seen[a.Dest] = true

		for j, s := range p.Stages {
			for _, se := range s.SideEffects {
				if pathsCollide(a.Dest, se) {
					*errs = append(*errs, ValidationError{
						Field:   prefix + ".dest",
						Message: fmt.Sprintf("collides with side effect %q of stage %d (%s)", se, j, s.Name),
					})
				}
			}
		}
	}
}

// pathsCollide reports whether two absolute paths overlap (equal, or one
// contains the other).
func pathsCollide(a, b string) bool {
	a, b = path.Clean(a), path.Clean(b)
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
