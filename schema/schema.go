// Package schema loads struct descriptors from YAML and turns them into
// a pserial.Registry. A descriptor lists the fields a struct name must
// carry, their kinds, and defaults for the optional ones:
//
//	structs:
//	  - name: Point
//	    fields:
//	      - {name: x, kind: int, required: true}
//	      - {name: y, kind: int, default: 0}
//	      - {name: label, kind: string}
//
// Structs decoded under a described name are validated and materialized
// as *Record values with fields in descriptor order.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	pyaml "github.com/Neumenon/pserial/encoders/yaml"
	"github.com/Neumenon/pserial/pserial"
)

// Kind constrains the value a field may hold.
type Kind string

const (
	KindAny    Kind = "any"
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindDouble Kind = "double"
	KindNumber Kind = "number" // int or double
	KindString Kind = "string"
	KindArray  Kind = "array"
	KindList   Kind = "list" // array with keys 0..n-1
	KindStruct Kind = "struct"
)

// Accepts reports whether v satisfies k.
func (k Kind) Accepts(v *pserial.Value) bool {
	switch k {
	case KindAny, "":
		return true
	case KindNumber:
		return v.Kind() == pserial.KindInt || v.Kind() == pserial.KindDouble
	case KindList:
		return v.IsList()
	case KindString:
		return v.Kind() == pserial.KindStr
	}
	return string(k) == v.Kind().String()
}

func (k Kind) valid() bool {
	switch k {
	case KindAny, KindNull, KindBool, KindInt, KindDouble, KindNumber,
		KindString, KindArray, KindList, KindStruct, "":
		return true
	}
	return false
}

// FieldSpec describes one struct field.
type FieldSpec struct {
	Name     string    `yaml:"name"`
	Kind     Kind      `yaml:"kind"`
	Required bool      `yaml:"required"`
	Default  yaml.Node `yaml:"default"`

	def *pserial.Value
}

// StructSpec describes one struct name.
type StructSpec struct {
	Name   string      `yaml:"name"`
	Fields []FieldSpec `yaml:"fields"`
	// AllowExtra keeps fields the descriptor does not list, after the
	// described ones. Without it they are an error.
	AllowExtra bool `yaml:"allow_extra"`
}

type document struct {
	Structs []StructSpec `yaml:"structs"`
}

// ErrInvalidSchema wraps every descriptor loading failure.
var ErrInvalidSchema = errors.New("schema: invalid descriptor")

// Set is a loaded collection of struct descriptors. It implements
// pserial.Registry and is read-only after loading, so it is safe for
// concurrent use.
type Set struct {
	specs map[string]*StructSpec
	names []string
}

var _ pserial.Registry = (*Set)(nil)

// Parse loads descriptors from YAML bytes.
func Parse(data []byte) (*Set, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	set := &Set{specs: make(map[string]*StructSpec, len(doc.Structs))}
	for i := range doc.Structs {
		spec := &doc.Structs[i]
		if err := spec.prepare(); err != nil {
			return nil, err
		}
		if _, dup := set.specs[spec.Name]; dup {
			return nil, fmt.Errorf("%w: struct %q declared twice", ErrInvalidSchema, spec.Name)
		}
		set.specs[spec.Name] = spec
		set.names = append(set.names, spec.Name)
	}
	return set, nil
}

// Load reads descriptors from r.
func Load(r io.Reader) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("schema: read: %w", err)
	}
	return Parse(data)
}

// LoadFile reads descriptors from a file.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return Parse(data)
}

func (s *StructSpec) prepare() error {
	if s.Name == "" {
		return fmt.Errorf("%w: struct without a name", ErrInvalidSchema)
	}
	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("%w: %s: field %d has no name", ErrInvalidSchema, s.Name, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %s.%s declared twice", ErrInvalidSchema, s.Name, f.Name)
		}
		seen[f.Name] = true
		if !f.Kind.valid() {
			return fmt.Errorf("%w: %s.%s: unknown kind %q", ErrInvalidSchema, s.Name, f.Name, f.Kind)
		}
		if f.Default.Kind == 0 {
			continue
		}
		if f.Required {
			return fmt.Errorf("%w: %s.%s: required field with a default", ErrInvalidSchema, s.Name, f.Name)
		}
		def, err := pyaml.FromNode(&f.Default)
		if err != nil {
			return fmt.Errorf("%w: %s.%s default: %v", ErrInvalidSchema, s.Name, f.Name, err)
		}
		if !def.IsNull() && !f.Kind.Accepts(def) {
			return fmt.Errorf("%w: %s.%s: default is %s, want %s", ErrInvalidSchema, s.Name, f.Name, def.Kind(), f.Kind)
		}
		f.def = def
	}
	return nil
}

// Names returns the described struct names in declaration order.
func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}

// Spec returns the descriptor for name.
func (s *Set) Spec(name string) (*StructSpec, bool) {
	spec, ok := s.specs[name]
	return spec, ok
}

// Lookup implements pserial.Registry.
func (s *Set) Lookup(name string) (pserial.Factory, bool) {
	spec, ok := s.specs[name]
	if !ok {
		return nil, false
	}
	return pserial.FactoryFunc(spec.build), true
}
