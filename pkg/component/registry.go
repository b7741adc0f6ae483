package component

import (
	"fmt"
	"sort"
	"sync"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

// Registry maps component names to descriptors. Registries are built
// explicitly and handed to job builders and runners; there is no global one.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	aliases     map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		aliases:     make(map[string]string),
	}
}

// Register adds a descriptor and its aliases
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("cannot register nil descriptor")
	}
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[d.Name]; exists {
		return fmt.Errorf("component %q already registered", d.Name)
	}
	for _, alias := range d.Aliases {
		if _, taken := r.descriptors[alias]; taken {
			return fmt.Errorf("alias %q of %s collides with a registered component", alias, d.Name)
		}
		if owner, taken := r.aliases[alias]; taken {
			return fmt.Errorf("alias %q of %s already used by %s", alias, d.Name, owner)
		}
	}
	r.descriptors[d.Name] = d
	for _, alias := range d.Aliases {
		r.aliases[alias] = d.Name
	}
	return nil
}

// MustRegister registers descriptors and panics on error. Meant for
// package level registry setup.
func (r *Registry) MustRegister(ds ...*Descriptor) *Registry {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the descriptor registered under name or alias
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.descriptors[name]; ok {
		return d, nil
	}
	if target, ok := r.aliases[name]; ok {
		return r.descriptors[target], nil
	}
	return nil, fmt.Errorf("%w: %s", dcerrors.ErrUnknownComponent, name)
}

// Has reports whether name or alias is registered
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names returns the registered component names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the descriptors of a kind, sorted by name
func (r *Registry) Descriptors(kind Kind) []*Descriptor {
	var out []*Descriptor
	for _, name := range r.Names() {
		d, _ := r.Lookup(name)
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
