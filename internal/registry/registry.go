// Package registry implements the version pin registry: an immutable mapping
// from dependency name to one exact pinned version, built once at pipeline
// definition time. Centralizing every version here keeps the declared and the
// fetched versions from drifting apart, so two runs of the same definition
// provision the same environment.
package registry

import (
	"fmt"
	"sort"

	"github.com/physimals/envbuild/internal/config"
)

// Install methods a pin may declare.
const (
	MethodSystemPackage = "system-package"
	MethodSourceBuild   = "source-build"
	MethodSourceScript  = "source-script"
	MethodPackageIndex  = "package-index"
)

// Dependency is one pinned dependency resolved from the registry.
type Dependency struct {
	Name    string
	Version string
	Source  string
	Method  string
}

// UnknownDependencyError is returned when a name has no pin. It is a
// definition bug, caught before any stage executes.
type UnknownDependencyError struct {
	Name string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("unknown dependency %q: not present in version pins", e.Name)
}

// Registry is a read-only name → Dependency mapping. It exposes no mutation
// operations after construction.
type Registry struct {
	pins map[string]Dependency
}

// FromPins builds a Registry from a pipeline definition's pins.
func FromPins(pins map[string]config.Pin) *Registry {
	r := &Registry{pins: make(map[string]Dependency, len(pins))}
	for name, pin := range pins {
		r.pins[name] = Dependency{
			Name:    name,
			Version: pin.Version,
			Source:  pin.Source,
			Method:  pin.Method,
		}
	}
	return r
}

// Resolve returns the pinned dependency for name, or *UnknownDependencyError
// if the name is not registered. The returned value is a copy; callers cannot
// mutate the registry through it.
func (r *Registry) Resolve(name string) (Dependency, error) {
	dep, ok := r.pins[name]
	if !ok {
		return Dependency{}, &UnknownDependencyError{Name: name}
	}
	return dep, nil
}

// Names returns all registered dependency names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.pins))
	for name := range r.pins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered pins.
func (r *Registry) Len() int {
	return len(r.pins)
}
