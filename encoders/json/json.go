// Package json transcodes the value model to and from JSON.
//
// Lists become JSON arrays, other arrays become objects, and structs
// become objects whose first member is "__class". JSON with comments
// and trailing commas is accepted on input.
package json

import (
	"github.com/Neumenon/pserial/pserial"
)

type Encoder struct {
	indent string
}

var _ pserial.Format = &Encoder{}

func (e *Encoder) Name() string {
	return "json"
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	val, err := pserial.FromNative(v)
	if err != nil {
		return nil, err
	}
	if e.indent != "" {
		return pserial.ToJSONIndent(val, e.indent)
	}
	return pserial.ToJSON(val)
}

func (e *Encoder) Unmarshal(data []byte, v any) error {
	val, err := pserial.FromJSON(data)
	if err != nil {
		return err
	}
	return pserial.Assign(val, v, nil, false)
}

func New() *Encoder {
	return &Encoder{}
}

// NewIndent returns an Encoder that pretty-prints with the given indent.
func NewIndent(indent string) *Encoder {
	return &Encoder{indent: indent}
}
