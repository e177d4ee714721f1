// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ast

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownScript is returned when no script is registered under a name.
var ErrUnknownScript = errors.New("ast: unknown script")

// Factory creates a fresh script instance for one execution.
type Factory func() Script

// Registry maps script names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering the same name twice is a
// programming error.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("ast: script %q registered twice", name))
	}
	r.factories[name] = f
}

// Get creates a new instance of the named script.
func (r *Registry) Get(name string) (Script, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScript, name)
	}
	return f(), nil
}

// Names returns the registered script names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
