package pserial

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// ClassKey carries the struct name when a struct is flattened into a
// map (ToNative, the JSON bridge and the map-based formats).
const ClassKey = "__class"

// StructMarshaler is implemented by host types that flatten themselves
// into a named struct. FromNative never enumerates Go struct fields by
// itself.
type StructMarshaler interface {
	MarshalPHPStruct() (name string, fields []Field, err error)
}

// FromNative converts a live Go value to a Value. Values with no place
// in the model (funcs, channels, complex numbers, plain structs)
// fail with ErrUnsupportedType.
func FromNative(x any) (*Value, error) {
	return fromNative(x, 0)
}

func fromNative(x any, depth int) (*Value, error) {
	if depth > DefaultMaxDepth {
		return nil, &TypeError{Reason: fmt.Sprintf("nesting depth exceeds %d", DefaultMaxDepth)}
	}

	switch t := x.(type) {
	case nil:
		return Null(), nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return t, nil
	case Value:
		return &t, nil
	case StructMarshaler:
		name, fields, err := t.MarshalPHPStruct()
		if err != nil {
			return nil, fmt.Errorf("pserial: marshal %T: %w", x, err)
		}
		return Struct(name, fields...), nil
	case bool:
		return Bool(t), nil
	case string:
		return Str(t), nil
	case []byte:
		return Str(string(t)), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint, uint64, uintptr:
		return fromUint(reflect.ValueOf(t).Uint())
	case float32:
		return Double(float64(t)), nil
	case float64:
		return Double(t), nil
	case []any:
		return fromSlice(reflect.ValueOf(t), depth)
	case map[string]any:
		return fromMap(reflect.ValueOf(t), depth)
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return fromNative(rv.Elem().Interface(), depth+1)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return Str(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Double(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		return fromSlice(rv, depth)
	case reflect.Map:
		return fromMap(rv, depth)
	case reflect.Func:
		return nil, &TypeError{Reason: fmt.Sprintf("cannot serialize closure %T", x)}
	default:
		return nil, &TypeError{Reason: fmt.Sprintf("cannot serialize %T", x)}
	}
}

func fromUint(u uint64) (*Value, error) {
	if u > math.MaxInt64 {
		return nil, &TypeError{Reason: fmt.Sprintf("unsigned integer %d overflows int64", u)}
	}
	return Int(int64(u)), nil
}

func fromSlice(rv reflect.Value, depth int) (*Value, error) {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return List(), nil
	}
	values := make([]*Value, rv.Len())
	for i := range values {
		v, err := fromNative(rv.Index(i).Interface(), depth+1)
		if err != nil {
			return nil, prefixPath(err, "["+strconv.Itoa(i)+"]")
		}
		values[i] = v
	}
	return List(values...), nil
}

type nativeEntry struct {
	key *Value
	val reflect.Value
}

// fromMap emits map entries int keys first, then string keys, each in
// ascending order, so the output does not depend on map iteration.
// A string ClassKey entry turns the map into a struct.
func fromMap(rv reflect.Value, depth int) (*Value, error) {
	entries := make([]nativeEntry, 0, rv.Len())
	className := ""
	isStruct := false

	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		for k.Kind() == reflect.Interface && !k.IsNil() {
			k = k.Elem()
		}
		var key *Value
		switch k.Kind() {
		case reflect.String:
			if k.String() == ClassKey {
				if name, ok := iter.Value().Interface().(string); ok {
					className, isStruct = name, true
					continue
				}
			}
			key = ArrayKey(k.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			key = Int(k.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			u, err := fromUint(k.Uint())
			if err != nil {
				return nil, err
			}
			key = u
		case reflect.Bool:
			key = Int(0)
			if k.Bool() {
				key = Int(1)
			}
		default:
			return nil, &TypeError{Reason: fmt.Sprintf("unsupported map key type %s", k.Type())}
		}
		entries = append(entries, nativeEntry{key: key, val: iter.Value()})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].key, entries[j].key
		if a.kind != b.kind {
			return a.kind == KindInt
		}
		if a.kind == KindInt {
			return a.intVal < b.intVal
		}
		return a.strVal < b.strVal
	})

	if isStruct {
		fields := make([]Field, 0, len(entries))
		for _, e := range entries {
			name := keyString(e.key)
			v, err := fromNative(e.val.Interface(), depth+1)
			if err != nil {
				return nil, prefixPath(err, "."+name)
			}
			fields = append(fields, Field{Name: name, Value: v})
		}
		return Struct(className, fields...), nil
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		v, err := fromNative(e.val.Interface(), depth+1)
		if err != nil {
			return nil, prefixPath(err, keySegment(e.key))
		}
		out = append(out, Entry{Key: e.key, Value: v})
	}
	return Array(out...), nil
}

// ArrayKey returns the key PHP would store for s: decimal integer
// strings in canonical form ("7", "-3", not "07" or "-0") become Int,
// everything else stays Str.
func ArrayKey(s string) *Value {
	if n, ok := canonicalIntKey(s); ok {
		return Int(n)
	}
	return Str(s)
}

func canonicalIntKey(s string) (int64, bool) {
	if s == "" || len(s) > 20 {
		return 0, false
	}
	digits := s
	if s[0] == '-' {
		digits = s[1:]
	}
	if digits == "" || (digits[0] == '0' && (len(digits) > 1 || s[0] == '-')) {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if !isDigit(digits[i]) {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ToNative converts a Value to plain Go values: nil, bool, int64,
// float64, string, []any for list-shaped arrays and map[string]any
// otherwise. Structs are resolved against reg when it is set; unresolved
// structs become maps carrying ClassKey. Duplicate keys keep the last
// value.
func ToNative(v *Value, reg Registry, strict bool) (any, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.boolVal, nil
	case KindInt:
		return v.intVal, nil
	case KindDouble:
		return v.floatVal, nil
	case KindStr:
		return v.strVal, nil

	case KindArray:
		if v.IsList() {
			out := make([]any, len(v.arrVal))
			for i, e := range v.arrVal {
				x, err := ToNative(e.Value, reg, strict)
				if err != nil {
					return nil, err
				}
				out[i] = x
			}
			return out, nil
		}
		out := make(map[string]any, len(v.arrVal))
		for _, e := range v.arrVal {
			x, err := ToNative(e.Value, reg, strict)
			if err != nil {
				return nil, err
			}
			out[keyString(e.Key)] = x
		}
		return out, nil

	case KindStruct:
		if reg != nil || strict {
			resolved, err := Resolve(v, reg, strict)
			if err != nil {
				return nil, err
			}
			if _, generic := resolved.(*Value); !generic {
				return resolved, nil
			}
		}
		out := make(map[string]any, len(v.structVal.Fields)+1)
		out[ClassKey] = v.structVal.Name
		for _, f := range v.structVal.Fields {
			x, err := ToNative(f.Value, reg, strict)
			if err != nil {
				return nil, err
			}
			out[f.Name] = x
		}
		return out, nil
	}
	return nil, &TypeError{Reason: fmt.Sprintf("unknown kind %d", v.kind)}
}
