package protobuf

import (
	"bytes"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

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
		pserial.Pair(pserial.Str("min"), pserial.Int(math.MinInt64)),
		pserial.Pair(pserial.Str("nan"), pserial.Double(math.NaN())),
		pserial.Pair(pserial.Str("empty"), pserial.Struct("Empty")),
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

func TestEncoderWireLayout(t *testing.T) {
	encoded, err := Encode(pserial.Int(-1))
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	// field 3, varint, zigzag(-1) = 1
	if !bytes.Equal(encoded, []byte{0x18, 0x01}) {
		t.Errorf("Unexpected bytes % x", encoded)
	}

	encoded, err = Encode(pserial.Str("hi"))
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if !bytes.Equal(encoded, []byte{0x2a, 0x02, 'h', 'i'}) {
		t.Errorf("Unexpected bytes % x", encoded)
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	b := protowire.AppendTag(nil, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, fieldBool, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	v, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if got, _ := v.AsBool(); !got {
		t.Errorf("Expected true, got %s", pserial.Dump(v))
	}
}

func TestDecodeInvalid(t *testing.T) {
	wrongType := protowire.AppendTag(nil, fieldInt, protowire.BytesType)
	wrongType = protowire.AppendString(wrongType, "x")

	badKey := protowire.AppendTag(nil, 1, protowire.BytesType)
	badKey = protowire.AppendBytes(badKey, protowire.AppendVarint(protowire.AppendTag(nil, fieldNull, protowire.VarintType), 1))
	entry := protowire.AppendTag(nil, 1, protowire.BytesType)
	entry = protowire.AppendBytes(entry, badKey)
	nullKey := protowire.AppendTag(nil, fieldArray, protowire.BytesType)
	nullKey = protowire.AppendBytes(nullKey, entry)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated tag", []byte{0x80}},
		{"truncated bytes", []byte{0x2a, 0x05, 'a'}},
		{"wrong wire type", wrongType},
		{"null key", nullKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
