package pserial

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one
// of these through errors.Is, except unknown type tags which match both
// ErrUnknownType and ErrMalformedInput.
var (
	// ErrUnsupportedType is returned by the encoder when a value falls
	// outside the model or a struct name is denylisted.
	ErrUnsupportedType = errors.New("pserial: unsupported type")

	// ErrMalformedInput is returned by the decoder on any grammar violation.
	ErrMalformedInput = errors.New("pserial: malformed input")

	// ErrUnknownType is returned by the decoder when a value starts with
	// a tag byte outside N b i d s a O.
	ErrUnknownType = errors.New("pserial: unknown type")

	// ErrUnknownStruct is returned by strict registry resolution when a
	// struct name has no factory.
	ErrUnknownStruct = errors.New("pserial: unknown struct")
)

// SyntaxError describes a decode failure at a byte offset of the input.
type SyntaxError struct {
	Msg    string
	Offset int
	kind   error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d", e.Kind(), e.Msg, e.Offset)
}

// Kind returns ErrUnknownType or ErrMalformedInput.
func (e *SyntaxError) Kind() error {
	if e.kind == nil {
		return ErrMalformedInput
	}
	return e.kind
}

// Unwrap exposes the error kind. Unknown tags also unwrap to
// ErrMalformedInput so callers can test for either.
func (e *SyntaxError) Unwrap() []error {
	if e.kind == ErrUnknownType {
		return []error{ErrUnknownType, ErrMalformedInput}
	}
	return []error{e.Kind()}
}

// TypeError describes an encode failure. Path locates the offending
// value, e.g. `[2]["subarr"].arrProp`.
type TypeError struct {
	Path   string
	Reason string
}

func (e *TypeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", ErrUnsupportedType, e.Reason)
	}
	return fmt.Sprintf("%s: %s at %s", ErrUnsupportedType, e.Reason, e.Path)
}

func (e *TypeError) Unwrap() error {
	return ErrUnsupportedType
}

// UnknownStructError is returned when strict resolution meets a struct
// name that the registry does not know.
type UnknownStructError struct {
	Name string
}

func (e *UnknownStructError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownStruct, e.Name)
}

func (e *UnknownStructError) Unwrap() error {
	return ErrUnknownStruct
}
