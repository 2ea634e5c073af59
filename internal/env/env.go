// Package env provides the explicit handle to the environment under
// construction. Stages receive the handle as a parameter instead of touching
// ambient global state, which keeps them testable against throwaway roots.
package env

import (
	"path/filepath"
	"sort"
	"strings"
)

// Handle is the single shared resource of a pipeline run: the environment's
// root directory plus the environment variables accumulated from stage
// exports. Stages are the only writers, and execution is strictly sequential,
// so no locking is needed.
type Handle struct {
	root string
	vars map[string]string
}

// New creates a Handle rooted at the given directory. A root of "/" addresses
// the live filesystem; any other root relocates all declared paths beneath it.
func New(root string) *Handle {
	if root == "" {
		root = "/"
	}
	return &Handle{root: root, vars: make(map[string]string)}
}

// Root returns the environment root directory.
func (h *Handle) Root() string {
	return h.root
}

// Path maps an absolute in-environment path to its real location under the
// root.
func (h *Handle) Path(p string) string {
	if h.root == "/" {
		return p
	}
	return filepath.Join(h.root, strings.TrimPrefix(p, "/"))
}

// Export records an environment variable contributed by a stage, visible to
// all later stages.
func (h *Handle) Export(key, value string) {
	h.vars[key] = value
}

// Lookup returns an exported variable and whether it is set.
func (h *Handle) Lookup(key string) (string, bool) {
	v, ok := h.vars[key]
	return v, ok
}

// Environ returns the accumulated exports as KEY=VALUE pairs in sorted order,
// so identical runs see identical environments.
func (h *Handle) Environ() []string {
	keys := make([]string, 0, len(h.vars))
	for k := range h.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+h.vars[k])
	}
	return pairs
}
