// Package cbor transcodes the value model to and from CBOR (RFC 8949).
//
// Scalars use Core Deterministic Encoding, except that NaN payloads are
// kept bit for bit. Lists become CBOR arrays and
// other arrays become maps written in entry order rather than sorted
// key order, since entry order is part of the value. A struct is tag 27
// (serialised object) wrapping [name, {field: value, ...}]. Strings that
// are not valid UTF-8 become byte strings.
package cbor

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"

	"github.com/Neumenon/pserial/pserial"
)

// TagObject is the CBOR tag number for a named struct.
const TagObject = 27

// CBOR major types.
const (
	majorUint   = 0
	majorNegInt = 1
	majorBytes  = 2
	majorText   = 3
	majorArray  = 4
	majorMap    = 5
	majorTag    = 6
	majorSimple = 7
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.NaNConvert = cbor.NaNConvertNone
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("cbor: encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxNestedLevels: pserial.DefaultMaxDepth,
	}.DecMode()
	if err != nil {
		panic("cbor: decoder initialization failed: " + err.Error())
	}
}

type Encoder struct{}

var _ pserial.Format = &Encoder{}

func (e *Encoder) Name() string {
	return "cbor"
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	val, err := pserial.FromNative(v)
	if err != nil {
		return nil, err
	}
	return Encode(val)
}

func (e *Encoder) Unmarshal(data []byte, v any) error {
	val, err := Decode(data)
	if err != nil {
		return err
	}
	return pserial.Assign(val, v, nil, false)
}

func New() *Encoder {
	return &Encoder{}
}

// Encode writes v as a single CBOR data item.
func Encode(v *pserial.Value) ([]byte, error) {
	return appendValue(nil, v, 0)
}

func appendValue(dst []byte, v *pserial.Value, depth int) ([]byte, error) {
	if depth > pserial.DefaultMaxDepth {
		return nil, &pserial.TypeError{Reason: fmt.Sprintf("nesting depth exceeds %d", pserial.DefaultMaxDepth)}
	}

	switch v.Kind() {
	case pserial.KindNull:
		return appendScalar(dst, nil)
	case pserial.KindBool:
		b, _ := v.AsBool()
		return appendScalar(dst, b)
	case pserial.KindInt:
		n, _ := v.AsInt()
		return appendScalar(dst, n)
	case pserial.KindDouble:
		f, _ := v.AsDouble()
		return appendScalar(dst, f)
	case pserial.KindStr:
		s, _ := v.AsStr()
		return appendString(dst, s)

	case pserial.KindArray:
		entries, _ := v.AsArray()
		if v.IsList() {
			dst = appendHead(dst, majorArray, uint64(len(entries)))
			for _, e := range entries {
				var err error
				if dst, err = appendValue(dst, e.Value, depth+1); err != nil {
					return nil, err
				}
			}
			return dst, nil
		}
		dst = appendHead(dst, majorMap, uint64(len(entries)))
		for _, e := range entries {
			key, err := pserial.CoerceKey(e.Key)
			if err != nil {
				return nil, err
			}
			if dst, err = appendValue(dst, key, depth+1); err != nil {
				return nil, err
			}
			if dst, err = appendValue(dst, e.Value, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil

	case pserial.KindStruct:
		s, _ := v.AsStruct()
		dst = appendHead(dst, majorTag, TagObject)
		dst = appendHead(dst, majorArray, 2)
		var err error
		if dst, err = appendString(dst, s.Name); err != nil {
			return nil, err
		}
		dst = appendHead(dst, majorMap, uint64(len(s.Fields)))
		for _, f := range s.Fields {
			if dst, err = appendString(dst, f.Name); err != nil {
				return nil, err
			}
			if dst, err = appendValue(dst, f.Value, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil
	}
	return nil, &pserial.TypeError{Reason: fmt.Sprintf("unknown kind %s", v.Kind())}
}

func appendScalar(dst []byte, x any) ([]byte, error) {
	b, err := encMode.Marshal(x)
	if err != nil {
		return nil, fmt.Errorf("cbor: %w", err)
	}
	return append(dst, b...), nil
}

func appendString(dst []byte, s string) ([]byte, error) {
	if utf8.ValidString(s) {
		return appendScalar(dst, s)
	}
	return appendScalar(dst, []byte(s))
}

// appendHead writes an initial byte and argument in the shortest form.
func appendHead(dst []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(dst, m|byte(n))
	case n <= 0xff:
		return append(dst, m|24, byte(n))
	case n <= 0xffff:
		return binary.BigEndian.AppendUint16(append(dst, m|25), uint16(n))
	case n <= 0xffffffff:
		return binary.BigEndian.AppendUint32(append(dst, m|26), uint32(n))
	default:
		return binary.BigEndian.AppendUint64(append(dst, m|27), n)
	}
}

// Decode reads exactly one well-formed CBOR data item.
func Decode(data []byte) (*pserial.Value, error) {
	if err := decMode.Wellformed(data); err != nil {
		return nil, fmt.Errorf("cbor: %w", err)
	}
	v, rest, err := decodeItem(data, 0)
	if err != nil {
		return nil, fmt.Errorf("cbor: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("cbor: %d trailing bytes after value", len(rest))
	}
	return v, nil
}

// readHead parses an initial byte and its argument. Indefinite lengths
// are rejected.
func readHead(data []byte) (major byte, n uint64, rest []byte, err error) {
	if len(data) == 0 {
		return 0, 0, nil, fmt.Errorf("unexpected end of data")
	}
	major = data[0] >> 5
	info := data[0] & 0x1f
	data = data[1:]

	switch {
	case info < 24:
		return major, uint64(info), data, nil
	case info == 24 && len(data) >= 1:
		return major, uint64(data[0]), data[1:], nil
	case info == 25 && len(data) >= 2:
		return major, uint64(binary.BigEndian.Uint16(data)), data[2:], nil
	case info == 26 && len(data) >= 4:
		return major, uint64(binary.BigEndian.Uint32(data)), data[4:], nil
	case info == 27 && len(data) >= 8:
		return major, binary.BigEndian.Uint64(data), data[8:], nil
	case info == 31:
		return 0, 0, nil, fmt.Errorf("indefinite-length items are not supported")
	}
	return 0, 0, nil, fmt.Errorf("malformed initial byte 0x%02x", major<<5|info)
}

// countHint bounds a preallocation by the bytes left.
func countHint(n uint64, rest []byte) int {
	if n > uint64(len(rest)) {
		return len(rest)
	}
	return int(n)
}

func decodeItem(data []byte, depth int) (*pserial.Value, []byte, error) {
	if depth > pserial.DefaultMaxDepth {
		return nil, nil, fmt.Errorf("nesting depth exceeds %d", pserial.DefaultMaxDepth)
	}

	major, n, body, err := readHead(data)
	if err != nil {
		return nil, nil, err
	}

	switch major {
	case majorUint, majorNegInt:
		var i int64
		rest, err := decMode.UnmarshalFirst(data, &i)
		if err != nil {
			return nil, nil, err
		}
		return pserial.Int(i), rest, nil

	case majorBytes:
		var b []byte
		rest, err := decMode.UnmarshalFirst(data, &b)
		if err != nil {
			return nil, nil, err
		}
		return pserial.Str(string(b)), rest, nil

	case majorText:
		var s string
		rest, err := decMode.UnmarshalFirst(data, &s)
		if err != nil {
			return nil, nil, err
		}
		return pserial.Str(s), rest, nil

	case majorArray:
		values := make([]*pserial.Value, 0, countHint(n, body))
		for i := uint64(0); i < n; i++ {
			var v *pserial.Value
			if v, body, err = decodeItem(body, depth+1); err != nil {
				return nil, nil, err
			}
			values = append(values, v)
		}
		return pserial.List(values...), body, nil

	case majorMap:
		entries := make([]pserial.Entry, 0, countHint(n, body))
		for i := uint64(0); i < n; i++ {
			var key, val *pserial.Value
			if key, body, err = decodeItem(body, depth+1); err != nil {
				return nil, nil, err
			}
			if k := key.Kind(); k != pserial.KindInt && k != pserial.KindStr {
				return nil, nil, fmt.Errorf("map key must be int or string, got %s", k)
			}
			if val, body, err = decodeItem(body, depth+1); err != nil {
				return nil, nil, err
			}
			entries = append(entries, pserial.Entry{Key: key, Value: val})
		}
		return pserial.Array(entries...), body, nil

	case majorTag:
		if n != TagObject {
			return nil, nil, fmt.Errorf("unsupported tag %d", n)
		}
		return decodeObject(body, depth)

	case majorSimple:
		var x any
		rest, err := decMode.UnmarshalFirst(data, &x)
		if err != nil {
			return nil, nil, err
		}
		switch t := x.(type) {
		case nil:
			return pserial.Null(), rest, nil
		case bool:
			return pserial.Bool(t), rest, nil
		case float64:
			return pserial.Double(t), rest, nil
		}
		return nil, nil, fmt.Errorf("unsupported simple value %v", x)
	}
	return nil, nil, fmt.Errorf("unsupported major type %d", major)
}

func decodeObject(data []byte, depth int) (*pserial.Value, []byte, error) {
	major, n, body, err := readHead(data)
	if err != nil {
		return nil, nil, err
	}
	if major != majorArray || n != 2 {
		return nil, nil, fmt.Errorf("tag %d content must be a two-element array", TagObject)
	}

	nameVal, body, err := decodeItem(body, depth+1)
	if err != nil {
		return nil, nil, err
	}
	name, err := nameVal.AsStr()
	if err != nil {
		return nil, nil, fmt.Errorf("struct name: %w", err)
	}

	major, n, body, err = readHead(body)
	if err != nil {
		return nil, nil, err
	}
	if major != majorMap {
		return nil, nil, fmt.Errorf("struct %s fields must be a map", name)
	}
	fields := make([]pserial.Field, 0, countHint(n, body))
	for i := uint64(0); i < n; i++ {
		var key, val *pserial.Value
		if key, body, err = decodeItem(body, depth+1); err != nil {
			return nil, nil, err
		}
		fname, err := key.AsStr()
		if err != nil {
			return nil, nil, fmt.Errorf("struct %s field name: %w", name, err)
		}
		if val, body, err = decodeItem(body, depth+1); err != nil {
			return nil, nil, err
		}
		fields = append(fields, pserial.Field{Name: fname, Value: val})
	}
	return pserial.Struct(name, fields...), body, nil
}

// Diagnose returns the RFC 8949 diagnostic notation of data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
