// Package filters implements the runtime filter library and the registry
// the compiler resolves filter and function names against.
package filters

import (
	"sort"
	"sync"
)

// Func is a filter or function callable from compiled templates. For a
// filter the piped value is the first argument.
type Func func(args ...any) (any, error)

// Registry maps names to callables. Filters and functions share one
// namespace: `x|length` and `length(x)` resolve to the same entry.
type Registry struct {
	funcs map[string]Func
	mutex sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Builtins returns a registry holding the built-in filter library.
func Builtins() *Registry {
	r := NewRegistry()
	for name, fn := range builtins() {
		r.Register(name, fn)
	}
	return r
}

// Register adds or replaces a callable.
func (r *Registry) Register(name string, fn Func) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the callable registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// HasFilter reports whether name can be used after a pipe.
func (r *Registry) HasFilter(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// HasFunction reports whether name can be called directly.
func (r *Registry) HasFunction(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
