package table

import (
	"sort"
	"sync"

	"github.com/docalc/docalc/pkg/schema"
)

// TransformerFunc is a named table transformer: it receives the input
// grid, its step parameters, and the report's extracted-data section, and
// produces a new grid. Implementations must not mutate the input grid.
type TransformerFunc func(grid schema.Grid, params map[string]any, extracted map[string]any) (schema.Grid, error)

// CustomRegistry is a thread-safe name -> TransformerFunc table with
// last-registration-wins semantics, mirroring the function registry.
type CustomRegistry struct {
	mu           sync.RWMutex
	transformers map[string]TransformerFunc
}

// NewCustomRegistry creates an empty CustomRegistry.
func NewCustomRegistry() *CustomRegistry {
	return &CustomRegistry{
		transformers: make(map[string]TransformerFunc),
	}
}

// NewBuiltinCustomRegistry creates a CustomRegistry pre-populated with
// the built-in domain transformers.
func NewBuiltinCustomRegistry() *CustomRegistry {
	r := NewCustomRegistry()
	RegisterBuiltinTransformers(r)
	return r
}

// Register adds a transformer, overwriting any previous registration
// under the same name.
func (r *CustomRegistry) Register(name string, fn TransformerFunc) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "transformer name is empty")
	}
	if fn == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "transformer %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[name] = fn
	return nil
}

// Get retrieves a transformer by name.
func (r *CustomRegistry) Get(name string) (TransformerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.transformers[name]
	return fn, ok
}

// Has checks if a transformer is registered.
func (r *CustomRegistry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all registered transformer names, sorted.
func (r *CustomRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.transformers))
	for name := range r.transformers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Transform runs a registered transformer by name. An unknown name is a
// configuration defect and always fails.
func (r *CustomRegistry) Transform(name string, grid schema.Grid, params map[string]any, extracted map[string]any) (schema.Grid, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeTransform,
			"unknown transformer %q", name).
			WithDetails(map[string]any{"registered_transformers": r.List()})
	}
	out, err := fn(grid.Clone(), params, extracted)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransform,
			"transformer %q failed", name).WithCause(err)
	}
	return out, nil
}
