package pserial

import "fmt"

// Format is a pluggable wire format. Callers pick an implementation at
// runtime and only ever talk to this interface.
type Format interface {
	// Name returns the format name used for selection (e.g. "php", "json").
	Name() string

	// Marshal serializes v, a *Value or a native Go value.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v, a **Value or *any.
	Unmarshal(data []byte, v any) error
}

var _ Format = &Codec{}

// Name implements Format.
func (c *Codec) Name() string {
	return "php"
}

// Marshal implements Format. Native values go through FromNative.
func (c *Codec) Marshal(v any) ([]byte, error) {
	val, err := FromNative(v)
	if err != nil {
		return nil, err
	}
	return c.AppendEncode(nil, val)
}

// Unmarshal implements Format. A **Value target receives the generic
// decode result; an *any target receives ToNative output with structs
// resolved against the codec registry.
func (c *Codec) Unmarshal(data []byte, v any) error {
	val, err := c.DecodeBytes(data)
	if err != nil {
		return err
	}
	return Assign(val, v, c.opts.Registry, c.opts.Strict)
}

// Assign stores val into target, which must be a **Value or *any.
// Formats that decode to a Value first share it.
func Assign(val *Value, target any, reg Registry, strict bool) error {
	switch t := target.(type) {
	case **Value:
		*t = val
		return nil
	case *any:
		native, err := ToNative(val, reg, strict)
		if err != nil {
			return err
		}
		*t = native
		return nil
	default:
		return fmt.Errorf("pserial: unmarshal target must be **pserial.Value or *any, got %T", target)
	}
}
