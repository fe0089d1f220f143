// SPDX-License-Identifier: MIT
package processor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// TemplateName is the name the no-op Template is registered under.
const TemplateName = "template"

// ErrUnknownProcessor is returned by Lookup for names with no factory.
var ErrUnknownProcessor = errors.New("unknown processor")

// Registry maps processor names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding only the Template.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[TemplateName] = NewTemplate
	return r
}

// Default is the registry used by Register.
var Default = NewRegistry()

// Register adds a factory to the Default registry. It panics if the name
// is empty, the factory is nil, or the name is already taken.
func Register(name string, factory Factory) {
	if err := Default.Register(name, factory); err != nil {
		panic(err)
	}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("processor: empty name")
	}
	if factory == nil {
		return fmt.Errorf("processor: nil factory for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("processor: %q registered twice", name)
	}
	r.factories[name] = factory
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
	}
	return f, nil
}

// Names returns the registered names in sorted order.
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
