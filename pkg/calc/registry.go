// Package calc computes calculated fields of a report from declarative
// field mappings, using a process-lifetime registry of named computation
// functions.
package calc

import (
	"sort"
	"sync"

	"github.com/docalc/docalc/pkg/schema"
)

// Function is a registered computation. It receives the already-resolved
// (and coerced) argument values in mapping order and returns a scalar.
type Function func(args ...any) (any, error)

// Registry is a thread-safe name -> Function table. It is populated during
// process initialization and read-mostly afterwards; the last registration
// for a name wins.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		functions: make(map[string]Function),
	}
}

// NewBuiltinRegistry creates a Registry pre-populated with the built-in
// calculation functions.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

// Register adds a function to the registry, overwriting any previous
// registration under the same name.
func (r *Registry) Register(name string, fn Function) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "function name is empty")
	}
	if fn == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "function %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[name] = fn
	return nil
}

// Get retrieves a function by name.
func (r *Registry) Get(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[name]
	return fn, ok
}

// List returns all registered function names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has checks if a function is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[name]
	return ok
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.functions)
}
