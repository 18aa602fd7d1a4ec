package runtime

import (
	"sync"
	"sync/atomic"
)

// FilterFunc is the state-aware filter calling convention.
type FilterFunc func(st *State, value Value, args Args) (Value, error)

// PlainFilterFunc is the plain filter calling convention, for filters that
// do not need the execution state.
type PlainFilterFunc func(value Value, args Args) (Value, error)

// TestFunc is the state-aware test calling convention.
type TestFunc func(st *State, value Value, args Args) (bool, error)

// PlainTestFunc is the plain test calling convention.
type PlainTestFunc func(value Value, args Args) (bool, error)

// FunctionFunc is the state-aware global function calling convention.
type FunctionFunc = Callable

// PlainFunctionFunc is the plain global function calling convention.
type PlainFunctionFunc func(args Args) (Value, error)

// registry holds filters, tests and globals. Mutations copy the whole
// snapshot so renders that resolved a snapshot at start keep it regardless
// of later registration.
type registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[registrySnapshot]
}

type registrySnapshot struct {
	filters map[string]FilterFunc
	tests   map[string]TestFunc
	globals map[string]Value
}

func newRegistry() *registry {
	r := &registry{}
	r.snap.Store(&registrySnapshot{
		filters: map[string]FilterFunc{},
		tests:   map[string]TestFunc{},
		globals: map[string]Value{},
	})
	return r
}

func (r *registry) snapshot() *registrySnapshot {
	return r.snap.Load()
}

// update applies fn to a copy of the current snapshot and publishes it.
func (r *registry) update(fn func(*registrySnapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.snap.Load()
	next := &registrySnapshot{
		filters: make(map[string]FilterFunc, len(old.filters)+1),
		tests:   make(map[string]TestFunc, len(old.tests)+1),
		globals: make(map[string]Value, len(old.globals)+1),
	}
	for k, v := range old.filters {
		next.filters[k] = v
	}
	for k, v := range old.tests {
		next.tests[k] = v
	}
	for k, v := range old.globals {
		next.globals[k] = v
	}
	fn(next)
	r.snap.Store(next)
}

func (r *registry) addFilter(name string, fn FilterFunc) {
	r.update(func(s *registrySnapshot) { s.filters[name] = fn })
}

func (r *registry) addTest(name string, fn TestFunc) {
	r.update(func(s *registrySnapshot) { s.tests[name] = fn })
}

func (r *registry) addGlobal(name string, v Value) {
	r.update(func(s *registrySnapshot) { s.globals[name] = v })
}

func (r *registry) removeFilter(name string) {
	r.update(func(s *registrySnapshot) { delete(s.filters, name) })
}

func (r *registry) removeTest(name string) {
	r.update(func(s *registrySnapshot) { delete(s.tests, name) })
}

func (r *registry) removeGlobal(name string) {
	r.update(func(s *registrySnapshot) { delete(s.globals, name) })
}
