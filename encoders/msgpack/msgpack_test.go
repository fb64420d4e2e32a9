package msgpack

import (
	"math"
	"testing"

	"github.com/Neumenon/pserial/pserial"
)

func sample() *pserial.Value {
	return pserial.Array(
		pserial.Pair(pserial.Int(1), pserial.Str("test")),
		pserial.Pair(pserial.Str(""), pserial.Bool(true)),
		pserial.Pair(pserial.Str("subarr"), pserial.List(pserial.Int(1), pserial.Int(2))),
		pserial.Pair(pserial.Str("obj"), pserial.Struct("stdClass",
			pserial.F("world", pserial.Null()),
			pserial.F("arrProp", pserial.List(pserial.Double(22.3), pserial.Int(-15))),
		)),
		pserial.Pair(pserial.Int(-9), pserial.Str("\xff\xfe binary")),
		pserial.Pair(pserial.Str("big"), pserial.Int(math.MinInt64)),
		pserial.Pair(pserial.Str("nan"), pserial.Double(math.NaN())),
	)
}

func TestEncoderRoundTrip(t *testing.T) {
	encoder := New()

	original := sample()
	encoded, err := encoder.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var decoded *pserial.Value
	if err := encoder.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if !pserial.Equal(original, decoded) {
		t.Errorf("Round trip mismatch:\n%s", pserial.Dump(decoded))
	}
}

func TestEncoderPreservesOrder(t *testing.T) {
	original := pserial.Array(
		pserial.Pair(pserial.Str("z"), pserial.Int(1)),
		pserial.Pair(pserial.Str("a"), pserial.Int(2)),
		pserial.Pair(pserial.Int(5), pserial.Int(3)),
	)
	encoded, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	entries, _ := decoded.AsArray()
	if s, _ := entries[0].Key.AsStr(); s != "z" {
		t.Errorf("Expected first key 'z', got %s", pserial.Dump(entries[0].Key))
	}
}

func TestEncoderCoercesKeys(t *testing.T) {
	encoded, err := Encode(pserial.Array(pserial.Pair(pserial.Null(), pserial.Int(1))))
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	entries, _ := decoded.AsArray()
	if s, err := entries[0].Key.AsStr(); err != nil || s != "" {
		t.Errorf("Expected empty string key, got %s", pserial.Dump(entries[0].Key))
	}
}

func TestEncoderDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"reserved code", []byte{0xc1}},
		{"truncated string", []byte{0xa5, 'a', 'b'}},
		{"trailing data", []byte{0xc0, 0xc0}},
		{"huge array", []byte{0xdd, 0xff, 0xff, 0xff, 0xff}},
		{"float key", []byte{0x81, 0xcb, 0, 0, 0, 0, 0, 0, 0, 0, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); err == nil {
				t.Error("Expected error for invalid msgpack data, got nil")
			}
		})
	}
}

func TestEncoderMarshalNative(t *testing.T) {
	encoder := New()

	encoded, err := encoder.Marshal(map[string]any{"name": "test", "value": 42})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var out any
	if err := encoder.Unmarshal(encoded, &out); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("Expected map, got %T", out)
	}
	if m["name"] != "test" || m["value"] != int64(42) {
		t.Errorf("Unexpected result %#v", m)
	}
}

func TestEncoderUnsupported(t *testing.T) {
	encoder := New()
	if _, err := encoder.Marshal(func() {}); err == nil {
		t.Error("Expected error for func value")
	}
}

func BenchmarkEncoderEncode(b *testing.B) {
	v := sample()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Encode(v)
	}
}

func BenchmarkEncoderDecode(b *testing.B) {
	encoded, _ := Encode(sample())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Decode(encoded)
	}
}
