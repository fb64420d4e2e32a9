// Package formats maps format names to their encoders so the CLI and
// the service select them the same way.
package formats

import (
	"fmt"
	"sort"

	"github.com/Neumenon/pserial/encoders/cbor"
	"github.com/Neumenon/pserial/encoders/json"
	"github.com/Neumenon/pserial/encoders/msgpack"
	"github.com/Neumenon/pserial/encoders/protobuf"
	"github.com/Neumenon/pserial/encoders/yaml"
	"github.com/Neumenon/pserial/pserial"
)

// Native is the name of the PHP-style wire format.
const Native = "php"

var contentTypes = map[string]string{
	Native:     "text/plain; charset=utf-8",
	"json":     "application/json",
	"yaml":     "application/yaml",
	"msgpack":  "application/msgpack",
	"cbor":     "application/cbor",
	"protobuf": "application/x-protobuf",
}

var binary = map[string]bool{
	"msgpack":  true,
	"cbor":     true,
	"protobuf": true,
}

// Binary reports whether the named format produces non-text output.
func Binary(name string) bool {
	return binary[name]
}

// Set holds one encoder per format name. The native format uses the
// codec the Set was built with.
type Set struct {
	formats map[string]pserial.Format
}

// New builds the set of all known formats around codec.
func New(codec *pserial.Codec) *Set {
	s := &Set{formats: make(map[string]pserial.Format)}
	for _, f := range []pserial.Format{
		codec,
		json.New(),
		yaml.New(),
		msgpack.New(),
		cbor.New(),
		protobuf.New(),
	} {
		s.formats[f.Name()] = f
	}
	return s
}

// Lookup returns the format registered under name.
func (s *Set) Lookup(name string) (pserial.Format, error) {
	f, ok := s.formats[name]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (want one of %v)", name, s.Names())
	}
	return f, nil
}

// Names returns the registered format names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.formats))
	for name := range s.formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContentType returns the media type for a format name.
func ContentType(name string) string {
	if ct, ok := contentTypes[name]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Decode parses data in the named format into a Value.
func (s *Set) Decode(name string, data []byte) (*pserial.Value, error) {
	f, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	var v *pserial.Value
	if err := f.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Encode renders v in the named format.
func (s *Set) Encode(name string, v *pserial.Value) ([]byte, error) {
	f, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	return f.Marshal(v)
}

// Convert transcodes data from one format to another.
func (s *Set) Convert(from, to string, data []byte) ([]byte, error) {
	v, err := s.Decode(from, data)
	if err != nil {
		return nil, err
	}
	return s.Encode(to, v)
}
