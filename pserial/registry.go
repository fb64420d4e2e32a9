package pserial

import (
	"fmt"
	"sync"
)

// Factory materializes a host value from a decoded struct.
type Factory interface {
	Build(s *StructValue) (any, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(s *StructValue) (any, error)

// Build calls f(s).
func (f FactoryFunc) Build(s *StructValue) (any, error) {
	return f(s)
}

// Registry maps struct names to factories. It is supplied and owned by
// the caller; the codec only queries it.
type Registry interface {
	Lookup(name string) (Factory, bool)
}

// MapRegistry is a Registry backed by a map. It is safe for concurrent
// Lookup and Register.
type MapRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewMapRegistry creates an empty registry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{factories: make(map[string]Factory)}
}

// Register binds name to f, replacing any previous binding.
func (r *MapRegistry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterFunc binds name to a function factory.
func (r *MapRegistry) RegisterFunc(name string, f func(s *StructValue) (any, error)) {
	r.Register(name, FactoryFunc(f))
}

// Lookup implements Registry.
func (r *MapRegistry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Len returns the number of registered names.
func (r *MapRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Resolve materializes v when it is a struct known to reg. Unknown
// structs come back unchanged as *Value, or fail with ErrUnknownStruct
// when strict. Non-struct values are returned unchanged.
func Resolve(v *Value, reg Registry, strict bool) (any, error) {
	if v.Kind() != KindStruct {
		return v, nil
	}
	s := v.structVal
	if reg != nil {
		if f, ok := reg.Lookup(s.Name); ok {
			out, err := f.Build(s)
			if err != nil {
				return nil, fmt.Errorf("pserial: build %q: %w", s.Name, err)
			}
			return out, nil
		}
	}
	if strict {
		return nil, &UnknownStructError{Name: s.Name}
	}
	return v, nil
}
