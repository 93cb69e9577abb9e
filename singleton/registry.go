// Package singleton provides a process-wide instance registry: at most
// one completed instance per concrete type, constructed lazily on first
// use.
//
// "One instance per type" and "this type may not be instantiated" are
// kept separate: any type can be registered, while interface types and
// types declared with MarkAbstract are rejected with a configuration
// error before their constructor ever runs.
package singleton

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrAbstractType is returned when an interface type or a type declared
// with MarkAbstract is requested from a registry.
var ErrAbstractType = errors.New("singleton: abstract type cannot be instantiated")

// Registry caches one instance per concrete type. Construct with
// NewRegistry; the package-level Default registry serves the common
// process-wide case.
type Registry struct {
	mu       sync.Mutex
	slots    map[reflect.Type]*slot
	abstract map[reflect.Type]bool
}

// slot holds the instance for one type. Its mutex serializes
// construction; holding it is the "under construction" state, and
// releasing it publishes the completed instance to blocked callers.
type slot struct {
	mu       sync.Mutex
	instance any
	ready    bool
}

// Default is the process-wide registry.
var Default = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		slots:    make(map[reflect.Type]*slot),
		abstract: make(map[reflect.Type]bool),
	}
}

// GetOrCreate returns the registry's instance of T, constructing it with
// ctor exactly once. Concurrent first calls for the same type block until
// the winning constructor finishes, then observe its instance. If the
// constructor fails, the slot stays uninitialized and the error is
// returned; a later call runs the constructor again.
//
// The registry lock is held only to find or insert the slot, never while
// ctor runs, so construction of one type does not stall lookups of
// another.
func GetOrCreate[T any](r *Registry, ctor func() (T, error)) (T, error) {
	var zero T
	typ := reflect.TypeOf((*T)(nil)).Elem()

	if typ.Kind() == reflect.Interface {
		return zero, fmt.Errorf("%w: %s is an interface", ErrAbstractType, typ)
	}

	r.mu.Lock()
	if r.abstract[typ] {
		r.mu.Unlock()
		return zero, fmt.Errorf("%w: %s", ErrAbstractType, typ)
	}
	sl, ok := r.slots[typ]
	if !ok {
		sl = &slot{}
		r.slots[typ] = sl
	}
	r.mu.Unlock()

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.ready {
		return sl.instance.(T), nil
	}

	instance, err := ctor()
	if err != nil {
		return zero, err
	}

	sl.instance = instance
	sl.ready = true
	return instance, nil
}

// Reset drops the slot for T so the next GetOrCreate constructs a fresh
// instance. References already handed out remain valid. Reset is meant
// for tests and reconfiguration, not for racing in-flight construction.
func Reset[T any](r *Registry) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	r.mu.Lock()
	delete(r.slots, typ)
	r.mu.Unlock()
}

// MarkAbstract declares T non-instantiable: subsequent GetOrCreate calls
// for T fail with ErrAbstractType. Base types meant only for embedding
// are marked this way.
func MarkAbstract[T any](r *Registry) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	r.mu.Lock()
	r.abstract[typ] = true
	r.mu.Unlock()
}
