package pserial

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// ============================================================
// JSON Bridge
// ============================================================
//
// Converts between JSON and Value keeping object member order.
// Objects become arrays with PHP key normalisation ("7" -> 7), and
// objects carrying ClassKey become structs. Comments and trailing
// commas are accepted on input.

// FromJSON converts JSON (or JSON with comments) to a Value.
func FromJSON(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	v, err := decodeJSON(dec, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("pserial: json: trailing data after value")
	}
	return v, nil
}

type jsonMember struct {
	name  string
	value *Value
}

func decodeJSON(dec *json.Decoder, depth int) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("pserial: json: %w", err)
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return Str(t), nil
	case json.Number:
		return jsonNumber(t)
	case json.Delim:
		if depth+1 > DefaultMaxDepth {
			return nil, fmt.Errorf("pserial: json: nesting depth exceeds %d", DefaultMaxDepth)
		}
		switch t {
		case '[':
			var values []*Value
			for dec.More() {
				v, err := decodeJSON(dec, depth+1)
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("pserial: json: %w", err)
			}
			return List(values...), nil
		case '{':
			return decodeJSONObject(dec, depth)
		}
	}
	return nil, fmt.Errorf("pserial: json: unexpected token %v", tok)
}

func decodeJSONObject(dec *json.Decoder, depth int) (*Value, error) {
	var members []jsonMember
	className, isStruct := "", false

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("pserial: json: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("pserial: json: expected object key, got %v", tok)
		}
		v, err := decodeJSON(dec, depth+1)
		if err != nil {
			return nil, err
		}
		if name == ClassKey && v.Kind() == KindStr && !isStruct {
			className, isStruct = v.strVal, true
			continue
		}
		members = append(members, jsonMember{name: name, value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("pserial: json: %w", err)
	}

	if isStruct {
		fields := make([]Field, len(members))
		for i, m := range members {
			fields[i] = Field{Name: m.name, Value: m.value}
		}
		return Struct(className, fields...), nil
	}
	entries := make([]Entry, len(members))
	for i, m := range members {
		entries[i] = Entry{Key: ArrayKey(m.name), Value: m.value}
	}
	return Array(entries...), nil
}

func jsonNumber(n json.Number) (*Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("pserial: json: number %s: %w", s, err)
	}
	return Double(f), nil
}

// ToJSON converts a Value to compact JSON. List-shaped arrays become
// JSON arrays; other arrays become objects in entry order. Structs
// become objects with ClassKey first. Non-finite doubles have no JSON
// form and fail with ErrUnsupportedType.
func ToJSON(v *Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToJSONIndent is like ToJSON but indents the output.
func ToJSONIndent(v *Value, indent string) ([]byte, error) {
	compact, err := ToJSON(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", indent); err != nil {
		return nil, fmt.Errorf("pserial: json: %w", err)
	}
	return out.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v *Value) error {
	switch v.Kind() {
	case KindNull:
		buf.WriteString("null")

	case KindBool:
		buf.WriteString(strconv.FormatBool(v.boolVal))

	case KindInt:
		buf.WriteString(strconv.FormatInt(v.intVal, 10))

	case KindDouble:
		f := v.floatVal
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &TypeError{Reason: fmt.Sprintf("double %s has no JSON form", FormatDouble(f))}
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		// Keep doubles distinguishable from ints on the way back
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)

	case KindStr:
		writeJSONString(buf, v.strVal)

	case KindArray:
		if v.IsList() {
			buf.WriteByte('[')
			for i, e := range v.arrVal {
				if i > 0 {
					buf.WriteByte(',')
				}
				if err := writeJSON(buf, e.Value); err != nil {
					return prefixPath(err, "["+strconv.Itoa(i)+"]")
				}
			}
			buf.WriteByte(']')
			return nil
		}
		buf.WriteByte('{')
		for i, e := range v.arrVal {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, keyString(e.Key))
			buf.WriteByte(':')
			if err := writeJSON(buf, e.Value); err != nil {
				return prefixPath(err, "["+strconv.Quote(keyString(e.Key))+"]")
			}
		}
		buf.WriteByte('}')

	case KindStruct:
		buf.WriteByte('{')
		writeJSONString(buf, ClassKey)
		buf.WriteByte(':')
		writeJSONString(buf, v.structVal.Name)
		for _, f := range v.structVal.Fields {
			buf.WriteByte(',')
			writeJSONString(buf, f.Name)
			buf.WriteByte(':')
			if err := writeJSON(buf, f.Value); err != nil {
				return prefixPath(err, "."+f.Name)
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	// Encode never fails for strings; it appends a newline we drop.
	_ = enc.Encode(s)
	buf.Truncate(buf.Len() - 1)
}
