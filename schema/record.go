package schema

import (
	"fmt"

	"github.com/Neumenon/pserial/pserial"
)

// Record is a struct that passed descriptor validation.
type Record struct {
	Name   string
	Fields []pserial.Field
}

// Get returns the named field value, or nil.
func (r *Record) Get(name string) *pserial.Value {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return nil
}

// Value converts the record back to a struct value.
func (r *Record) Value() *pserial.Value {
	return pserial.Struct(r.Name, r.Fields...)
}

// FieldError reports a struct that does not match its descriptor.
type FieldError struct {
	Struct string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("schema: %s.%s: %s", e.Struct, e.Field, e.Reason)
}

// build validates s against the descriptor. Null is accepted for any
// optional field. When a field name repeats, the last occurrence wins,
// as it does when PHP assigns properties.
func (spec *StructSpec) build(s *pserial.StructValue) (any, error) {
	given := make(map[string]*pserial.Value, len(s.Fields))
	for _, f := range s.Fields {
		given[f.Name] = f.Value
	}

	rec := &Record{Name: spec.Name, Fields: make([]pserial.Field, 0, len(spec.Fields))}
	described := make(map[string]bool, len(spec.Fields))
	for i := range spec.Fields {
		fs := &spec.Fields[i]
		described[fs.Name] = true

		v, ok := given[fs.Name]
		switch {
		case !ok && fs.Required:
			return nil, &FieldError{Struct: spec.Name, Field: fs.Name, Reason: "required field missing"}
		case !ok && fs.def != nil:
			v = fs.def
		case !ok:
			continue
		case v.IsNull() && fs.Required && fs.Kind != KindNull && fs.Kind != KindAny:
			return nil, &FieldError{Struct: spec.Name, Field: fs.Name, Reason: "required field is null"}
		case !v.IsNull() && !fs.Kind.Accepts(v):
			return nil, &FieldError{Struct: spec.Name, Field: fs.Name, Reason: fmt.Sprintf("got %s, want %s", v.Kind(), fs.Kind)}
		}
		rec.Fields = append(rec.Fields, pserial.Field{Name: fs.Name, Value: v})
	}

	for _, f := range s.Fields {
		if described[f.Name] {
			continue
		}
		if !spec.AllowExtra {
			return nil, &FieldError{Struct: spec.Name, Field: f.Name, Reason: "field not in descriptor"}
		}
		rec.Fields = append(rec.Fields, f)
	}
	return rec, nil
}
