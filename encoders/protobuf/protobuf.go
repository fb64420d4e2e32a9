// Package protobuf transcodes the value model to and from the protobuf
// wire format. The schema is fixed and mirrors the value model:
//
//	message Value {
//	  oneof kind {
//	    bool   null   = 1;
//	    bool   bool   = 2;
//	    sint64 int    = 3;
//	    double double = 4;
//	    bytes  str    = 5;
//	    Array  array  = 6;
//	    Struct struct = 7;
//	  }
//	}
//	message Array  { repeated Entry entries = 1; }
//	message Entry  { Value key = 1; Value value = 2; }
//	message Struct { string name = 1; repeated Field fields = 2; }
//	message Field  { string name = 1; Value value = 2; }
//
// Messages are built and parsed with protowire directly, so no generated
// code is needed. Unknown fields are skipped on decode.
package protobuf

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/Neumenon/pserial/pserial"
)

// Value field numbers.
const (
	fieldNull   protowire.Number = 1
	fieldBool   protowire.Number = 2
	fieldInt    protowire.Number = 3
	fieldDouble protowire.Number = 4
	fieldStr    protowire.Number = 5
	fieldArray  protowire.Number = 6
	fieldStruct protowire.Number = 7
)

type Encoder struct{}

var _ pserial.Format = &Encoder{}

func (e *Encoder) Name() string {
	return "protobuf"
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

// Encode writes v as a Value message.
func Encode(v *pserial.Value) ([]byte, error) {
	return appendValue(nil, v, 0)
}

func appendValue(b []byte, v *pserial.Value, depth int) ([]byte, error) {
	if depth > pserial.DefaultMaxDepth {
		return nil, &pserial.TypeError{Reason: fmt.Sprintf("nesting depth exceeds %d", pserial.DefaultMaxDepth)}
	}

	switch v.Kind() {
	case pserial.KindNull:
		b = protowire.AppendTag(b, fieldNull, protowire.VarintType)
		return protowire.AppendVarint(b, 1), nil

	case pserial.KindBool:
		x, _ := v.AsBool()
		b = protowire.AppendTag(b, fieldBool, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeBool(x)), nil

	case pserial.KindInt:
		n, _ := v.AsInt()
		b = protowire.AppendTag(b, fieldInt, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(n)), nil

	case pserial.KindDouble:
		f, _ := v.AsDouble()
		b = protowire.AppendTag(b, fieldDouble, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, math.Float64bits(f)), nil

	case pserial.KindStr:
		s, _ := v.AsStr()
		b = protowire.AppendTag(b, fieldStr, protowire.BytesType)
		return protowire.AppendString(b, s), nil

	case pserial.KindArray:
		entries, _ := v.AsArray()
		var msg []byte
		for _, e := range entries {
			key, err := pserial.CoerceKey(e.Key)
			if err != nil {
				return nil, err
			}
			entry, err := appendEntry(nil, key, e.Value, depth)
			if err != nil {
				return nil, err
			}
			msg = protowire.AppendTag(msg, 1, protowire.BytesType)
			msg = protowire.AppendBytes(msg, entry)
		}
		b = protowire.AppendTag(b, fieldArray, protowire.BytesType)
		return protowire.AppendBytes(b, msg), nil

	case pserial.KindStruct:
		s, _ := v.AsStruct()
		msg := protowire.AppendTag(nil, 1, protowire.BytesType)
		msg = protowire.AppendString(msg, s.Name)
		for _, f := range s.Fields {
			val, err := appendValue(nil, f.Value, depth+1)
			if err != nil {
				return nil, err
			}
			field := protowire.AppendTag(nil, 1, protowire.BytesType)
			field = protowire.AppendString(field, f.Name)
			field = protowire.AppendTag(field, 2, protowire.BytesType)
			field = protowire.AppendBytes(field, val)

			msg = protowire.AppendTag(msg, 2, protowire.BytesType)
			msg = protowire.AppendBytes(msg, field)
		}
		b = protowire.AppendTag(b, fieldStruct, protowire.BytesType)
		return protowire.AppendBytes(b, msg), nil
	}
	return nil, &pserial.TypeError{Reason: fmt.Sprintf("unknown kind %s", v.Kind())}
}

func appendEntry(b []byte, key, val *pserial.Value, depth int) ([]byte, error) {
	k, err := appendValue(nil, key, depth+1)
	if err != nil {
		return nil, err
	}
	v, err := appendValue(nil, val, depth+1)
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, k)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	return protowire.AppendBytes(b, v), nil
}

// Decode parses a Value message. An empty message is an error: every
// value sets exactly one kind field. When a kind field repeats, the
// last one wins, as protobuf oneof semantics require.
func Decode(data []byte) (*pserial.Value, error) {
	v, err := decodeValue(data, 0)
	if err != nil {
		return nil, fmt.Errorf("protobuf: %w", err)
	}
	return v, nil
}

// field is one parsed (number, type, payload) triple.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	fixed  uint64
	bytes  []byte
}

// fields walks a message and calls fn for each field.
func fields(data []byte, fn func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(data)
		case protowire.Fixed64Type:
			f.fixed, n = protowire.ConsumeFixed64(data)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func wantType(f field, typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d: wire type %d, want %d", f.num, f.typ, typ)
	}
	return nil
}

func decodeValue(data []byte, depth int) (*pserial.Value, error) {
	if depth > pserial.DefaultMaxDepth {
		return nil, fmt.Errorf("nesting depth exceeds %d", pserial.DefaultMaxDepth)
	}

	var out *pserial.Value
	err := fields(data, func(f field) error {
		var err error
		switch f.num {
		case fieldNull:
			if err = wantType(f, protowire.VarintType); err == nil {
				out = pserial.Null()
			}
		case fieldBool:
			if err = wantType(f, protowire.VarintType); err == nil {
				out = pserial.Bool(protowire.DecodeBool(f.varint))
			}
		case fieldInt:
			if err = wantType(f, protowire.VarintType); err == nil {
				out = pserial.Int(protowire.DecodeZigZag(f.varint))
			}
		case fieldDouble:
			if err = wantType(f, protowire.Fixed64Type); err == nil {
				out = pserial.Double(math.Float64frombits(f.fixed))
			}
		case fieldStr:
			if err = wantType(f, protowire.BytesType); err == nil {
				out = pserial.Str(string(f.bytes))
			}
		case fieldArray:
			if err = wantType(f, protowire.BytesType); err == nil {
				out, err = decodeArray(f.bytes, depth)
			}
		case fieldStruct:
			if err = wantType(f, protowire.BytesType); err == nil {
				out, err = decodeStruct(f.bytes, depth)
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("value message sets no kind")
	}
	return out, nil
}

func decodeArray(data []byte, depth int) (*pserial.Value, error) {
	var entries []pserial.Entry
	err := fields(data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		if err := wantType(f, protowire.BytesType); err != nil {
			return err
		}
		var key, val *pserial.Value
		err := fields(f.bytes, func(ef field) error {
			var err error
			switch ef.num {
			case 1:
				if err = wantType(ef, protowire.BytesType); err == nil {
					key, err = decodeValue(ef.bytes, depth+1)
				}
			case 2:
				if err = wantType(ef, protowire.BytesType); err == nil {
					val, err = decodeValue(ef.bytes, depth+1)
				}
			}
			return err
		})
		if err != nil {
			return err
		}
		if k := key.Kind(); k != pserial.KindInt && k != pserial.KindStr {
			return fmt.Errorf("entry key must be int or string, got %s", k)
		}
		if val == nil {
			val = pserial.Null()
		}
		entries = append(entries, pserial.Entry{Key: key, Value: val})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pserial.Array(entries...), nil
}

func decodeStruct(data []byte, depth int) (*pserial.Value, error) {
	var name string
	var out []pserial.Field
	err := fields(data, func(f field) error {
		switch f.num {
		case 1:
			if err := wantType(f, protowire.BytesType); err != nil {
				return err
			}
			name = string(f.bytes)
		case 2:
			if err := wantType(f, protowire.BytesType); err != nil {
				return err
			}
			var fname string
			var val *pserial.Value
			err := fields(f.bytes, func(ff field) error {
				var err error
				switch ff.num {
				case 1:
					if err = wantType(ff, protowire.BytesType); err == nil {
						fname = string(ff.bytes)
					}
				case 2:
					if err = wantType(ff, protowire.BytesType); err == nil {
						val, err = decodeValue(ff.bytes, depth+1)
					}
				}
				return err
			})
			if err != nil {
				return err
			}
			if val == nil {
				val = pserial.Null()
			}
			out = append(out, pserial.Field{Name: fname, Value: val})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pserial.Struct(name, out...), nil
}
