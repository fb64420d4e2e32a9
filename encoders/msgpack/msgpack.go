// Package msgpack transcodes the value model to and from MessagePack.
//
// Lists become msgpack arrays and other arrays become maps written in
// entry order. A struct is a map whose first key is nil and maps to
// the class name; array keys are never nil, so the two cannot be
// confused. Strings that are not valid UTF-8 are written as bin.
package msgpack

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/Neumenon/pserial/pserial"
)

type Encoder struct{}

var _ pserial.Format = &Encoder{}

func (e *Encoder) Name() string {
	return "msgpack"
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

// Encode writes v as a single msgpack item.
func Encode(v *pserial.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := encodeValue(enc, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(enc *msgpack.Encoder, v *pserial.Value, depth int) error {
	if depth > pserial.DefaultMaxDepth {
		return &pserial.TypeError{Reason: fmt.Sprintf("nesting depth exceeds %d", pserial.DefaultMaxDepth)}
	}

	switch v.Kind() {
	case pserial.KindNull:
		return enc.EncodeNil()
	case pserial.KindBool:
		b, _ := v.AsBool()
		return enc.EncodeBool(b)
	case pserial.KindInt:
		n, _ := v.AsInt()
		return enc.EncodeInt(n)
	case pserial.KindDouble:
		f, _ := v.AsDouble()
		return enc.EncodeFloat64(f)
	case pserial.KindStr:
		s, _ := v.AsStr()
		return encodeString(enc, s)

	case pserial.KindArray:
		entries, _ := v.AsArray()
		if v.IsList() {
			if err := enc.EncodeArrayLen(len(entries)); err != nil {
				return err
			}
			for _, e := range entries {
				if err := encodeValue(enc, e.Value, depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		if err := enc.EncodeMapLen(len(entries)); err != nil {
			return err
		}
		for _, e := range entries {
			key, err := pserial.CoerceKey(e.Key)
			if err != nil {
				return err
			}
			if err := encodeValue(enc, key, depth+1); err != nil {
				return err
			}
			if err := encodeValue(enc, e.Value, depth+1); err != nil {
				return err
			}
		}
		return nil

	case pserial.KindStruct:
		s, _ := v.AsStruct()
		if err := enc.EncodeMapLen(len(s.Fields) + 1); err != nil {
			return err
		}
		if err := enc.EncodeNil(); err != nil {
			return err
		}
		if err := encodeString(enc, s.Name); err != nil {
			return err
		}
		for _, f := range s.Fields {
			if err := encodeString(enc, f.Name); err != nil {
				return err
			}
			if err := encodeValue(enc, f.Value, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return &pserial.TypeError{Reason: fmt.Sprintf("unknown kind %s", v.Kind())}
}

func encodeString(enc *msgpack.Encoder, s string) error {
	if utf8.ValidString(s) {
		return enc.EncodeString(s)
	}
	return enc.EncodeBytes([]byte(s))
}

// Decode reads exactly one msgpack item. Trailing bytes are an error.
func Decode(data []byte) (*pserial.Value, error) {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	d := &decoder{dec: dec, r: r}

	v, err := d.decodeValue(0)
	if err != nil {
		return nil, fmt.Errorf("msgpack: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("msgpack: %d trailing bytes after value", r.Len())
	}
	return v, nil
}

type decoder struct {
	dec *msgpack.Decoder
	r   *bytes.Reader
}

// sizeHint bounds a preallocation by the bytes left; every element
// takes at least one byte.
func (d *decoder) sizeHint(n int) int {
	if n > d.r.Len() {
		return d.r.Len()
	}
	return n
}

func (d *decoder) decodeValue(depth int) (*pserial.Value, error) {
	if depth > pserial.DefaultMaxDepth {
		return nil, fmt.Errorf("nesting depth exceeds %d", pserial.DefaultMaxDepth)
	}

	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case c == msgpcode.Nil:
		if err := d.dec.DecodeNil(); err != nil {
			return nil, err
		}
		return pserial.Null(), nil

	case c == msgpcode.False || c == msgpcode.True:
		b, err := d.dec.DecodeBool()
		if err != nil {
			return nil, err
		}
		return pserial.Bool(b), nil

	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := d.dec.DecodeFloat64()
		if err != nil {
			return nil, err
		}
		return pserial.Double(f), nil

	case msgpcode.IsFixedNum(c),
		c == msgpcode.Uint8, c == msgpcode.Uint16, c == msgpcode.Uint32, c == msgpcode.Uint64,
		c == msgpcode.Int8, c == msgpcode.Int16, c == msgpcode.Int32, c == msgpcode.Int64:
		if c == msgpcode.Uint64 {
			u, err := d.dec.DecodeUint64()
			if err != nil {
				return nil, err
			}
			if u > 1<<63-1 {
				return nil, fmt.Errorf("unsigned integer %d overflows int64", u)
			}
			return pserial.Int(int64(u)), nil
		}
		n, err := d.dec.DecodeInt64()
		if err != nil {
			return nil, err
		}
		return pserial.Int(n), nil

	case msgpcode.IsString(c):
		s, err := d.dec.DecodeString()
		if err != nil {
			return nil, err
		}
		return pserial.Str(s), nil

	case msgpcode.IsBin(c):
		b, err := d.dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		return pserial.Str(string(b)), nil

	case msgpcode.IsFixedArray(c), c == msgpcode.Array16, c == msgpcode.Array32:
		n, err := d.dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		values := make([]*pserial.Value, 0, d.sizeHint(n))
		for i := 0; i < n; i++ {
			v, err := d.decodeValue(depth + 1)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return pserial.List(values...), nil

	case msgpcode.IsFixedMap(c), c == msgpcode.Map16, c == msgpcode.Map32:
		n, err := d.dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			if kc, err := d.dec.PeekCode(); err == nil && kc == msgpcode.Nil {
				return d.decodeStruct(n, depth)
			}
		}
		return d.decodeMap(n, depth)
	}

	return nil, fmt.Errorf("unsupported code 0x%02x", c)
}

func (d *decoder) decodeMap(n, depth int) (*pserial.Value, error) {
	entries := make([]pserial.Entry, 0, d.sizeHint(n))
	for i := 0; i < n; i++ {
		key, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		if k := key.Kind(); k != pserial.KindInt && k != pserial.KindStr {
			return nil, fmt.Errorf("map key must be int or string, got %s", k)
		}
		val, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, pserial.Entry{Key: key, Value: val})
	}
	return pserial.Array(entries...), nil
}

func (d *decoder) decodeStruct(n, depth int) (*pserial.Value, error) {
	if err := d.dec.DecodeNil(); err != nil {
		return nil, err
	}
	name, err := d.decodeText()
	if err != nil {
		return nil, fmt.Errorf("struct name: %w", err)
	}
	fields := make([]pserial.Field, 0, d.sizeHint(n-1))
	for i := 1; i < n; i++ {
		fname, err := d.decodeText()
		if err != nil {
			return nil, fmt.Errorf("struct %s field name: %w", name, err)
		}
		val, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		fields = append(fields, pserial.Field{Name: fname, Value: val})
	}
	return pserial.Struct(name, fields...), nil
}

// decodeText reads a str or bin item.
func (d *decoder) decodeText() (string, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return "", err
	}
	if msgpcode.IsBin(c) {
		b, err := d.dec.DecodeBytes()
		return string(b), err
	}
	if !msgpcode.IsString(c) {
		return "", fmt.Errorf("expected string, got code 0x%02x", c)
	}
	return d.dec.DecodeString()
}
