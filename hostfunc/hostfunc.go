package hostfunc

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// Func is a host function callable from sandboxed code. Arguments arrive as
// decoded JSON; the returned value is encoded back to JSON for the guest.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry maps host function names to implementations.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn under name, replacing any previous registration.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a snapshot of every registration.
func (r *Registry) All() map[string]Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.funcs)
}

// Clone returns an independent registry holding the same functions, so
// per-kernel capabilities can be added without touching the shared base.
func (r *Registry) Clone() *Registry {
	clone := NewRegistry()
	if r == nil {
		return clone
	}
	clone.funcs = r.All()
	return clone
}

// Call looks up name and invokes it.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, &UnknownFuncError{Name: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	return fn(ctx, args)
}

// UnknownFuncError is returned by Call for names that were never registered.
type UnknownFuncError struct {
	Name string
}

func (e *UnknownFuncError) Error() string {
	return "unknown function: " + e.Name
}
