package pserial

import (
	"fmt"
	"strconv"
)

// Kind represents the variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindStr
	KindArray  // Ordered (key, value) pairs: a:n:{...}
	KindStruct // Named record: O:len:"name":n:{...}
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindStr:
		return "string"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// Tag returns the wire tag byte that introduces values of this kind.
func (k Kind) Tag() byte {
	switch k {
	case KindNull:
		return 'N'
	case KindBool:
		return 'b'
	case KindInt:
		return 'i'
	case KindDouble:
		return 'd'
	case KindStr:
		return 's'
	case KindArray:
		return 'a'
	case KindStruct:
		return 'O'
	default:
		return '?'
	}
}

// Value is an immutable node of the serialized data model.
// A nil *Value behaves like Null everywhere.
type Value struct {
	kind Kind

	// Scalar payload (only one valid based on kind)
	boolVal  bool
	intVal   int64
	floatVal float64
	strVal   string

	// Container payload
	arrVal    []Entry
	structVal *StructValue
}

// Entry is one (key, value) pair of an array.
type Entry struct {
	Key   *Value
	Value *Value
}

// Field is one named property of a struct.
type Field struct {
	Name  string
	Value *Value
}

// StructValue is the payload of a struct: its class name and
// properties in the order the source enumerated them.
type StructValue struct {
	Name   string
	Fields []Field
}

// ============================================================
// Constructors
// ============================================================

// Null creates a null value.
func Null() *Value {
	return &Value{kind: KindNull}
}

// Bool creates a boolean value.
func Bool(v bool) *Value {
	return &Value{kind: KindBool, boolVal: v}
}

// Int creates an integer value.
func Int(v int64) *Value {
	return &Value{kind: KindInt, intVal: v}
}

// Double creates a double value.
func Double(v float64) *Value {
	return &Value{kind: KindDouble, floatVal: v}
}

// Str creates a string value. The string is treated as raw bytes.
func Str(v string) *Value {
	return &Value{kind: KindStr, strVal: v}
}

// Array creates an array from ordered entries.
func Array(entries ...Entry) *Value {
	return &Value{kind: KindArray, arrVal: entries}
}

// List creates an array keyed 0..n-1.
func List(values ...*Value) *Value {
	entries := make([]Entry, len(values))
	for i, v := range values {
		entries[i] = Entry{Key: Int(int64(i)), Value: v}
	}
	return &Value{kind: KindArray, arrVal: entries}
}

// Struct creates a named struct value.
func Struct(name string, fields ...Field) *Value {
	return &Value{
		kind: KindStruct,
		structVal: &StructValue{
			Name:   name,
			Fields: fields,
		},
	}
}

// Pair creates an Entry for use in Array construction.
func Pair(key, value *Value) Entry {
	return Entry{Key: key, Value: value}
}

// F creates a Field for use in Struct construction.
func F(name string, value *Value) Field {
	return Field{Name: name, Value: value}
}

// ============================================================
// Accessors
// ============================================================

// Kind returns the value kind.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull returns true if this is a null value.
func (v *Value) IsNull() bool {
	return v == nil || v.kind == KindNull
}

// AsBool returns the boolean value.
func (v *Value) AsBool() (bool, error) {
	if err := v.expect(KindBool); err != nil {
		return false, err
	}
	return v.boolVal, nil
}

// AsInt returns the integer value.
func (v *Value) AsInt() (int64, error) {
	if err := v.expect(KindInt); err != nil {
		return 0, err
	}
	return v.intVal, nil
}

// AsDouble returns the double value.
func (v *Value) AsDouble() (float64, error) {
	if err := v.expect(KindDouble); err != nil {
		return 0, err
	}
	return v.floatVal, nil
}

// AsStr returns the string value.
func (v *Value) AsStr() (string, error) {
	if err := v.expect(KindStr); err != nil {
		return "", err
	}
	return v.strVal, nil
}

// AsArray returns the array entries. The slice must not be modified.
func (v *Value) AsArray() ([]Entry, error) {
	if err := v.expect(KindArray); err != nil {
		return nil, err
	}
	return v.arrVal, nil
}

// AsStruct returns the struct payload.
func (v *Value) AsStruct() (*StructValue, error) {
	if err := v.expect(KindStruct); err != nil {
		return nil, err
	}
	return v.structVal, nil
}

func (v *Value) expect(k Kind) error {
	if got := v.Kind(); got != k {
		return fmt.Errorf("pserial: expected %s, got %s", k, got)
	}
	return nil
}

// Len returns the number of entries of an array or fields of a struct.
func (v *Value) Len() int {
	switch v.Kind() {
	case KindArray:
		return len(v.arrVal)
	case KindStruct:
		return len(v.structVal.Fields)
	case KindStr:
		return len(v.strVal)
	default:
		return 0
	}
}

// Get returns the value stored under key in an array. Integer keys
// match their decimal string form, so Get("0") finds i:0. When a key
// is duplicated the last occurrence wins.
func (v *Value) Get(key string) *Value {
	if v.Kind() != KindArray {
		return nil
	}
	var found *Value
	for _, e := range v.arrVal {
		if keyString(e.Key) == key {
			found = e.Value
		}
	}
	return found
}

// Field returns the value of a struct field by name.
func (v *Value) Field(name string) *Value {
	if v.Kind() != KindStruct {
		return nil
	}
	for _, f := range v.structVal.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return nil
}

// IsList reports whether v is an array keyed 0..n-1 in order.
func (v *Value) IsList() bool {
	if v.Kind() != KindArray {
		return false
	}
	for i, e := range v.arrVal {
		if e.Key.Kind() != KindInt || e.Key.intVal != int64(i) {
			return false
		}
	}
	return true
}

// keyString renders an array key the way Get compares it.
func keyString(k *Value) string {
	switch k.Kind() {
	case KindInt:
		return strconv.FormatInt(k.intVal, 10)
	case KindStr:
		return k.strVal
	default:
		return ""
	}
}
