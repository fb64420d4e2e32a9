package pserial

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"testing"
)

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_Scalars(t *testing.T) {
	tests := []struct {
		name  string
		value *Value
		want  string
	}{
		{"null", Null(), "N;"},
		{"nil", nil, "N;"},
		{"true", Bool(true), "b:1;"},
		{"false", Bool(false), "b:0;"},
		{"zero", Int(0), "i:0;"},
		{"positive", Int(3), "i:3;"},
		{"negative", Int(-15), "i:-15;"},
		{"min int", Int(math.MinInt64), "i:-9223372036854775808;"},
		{"small double", Double(0.0032), "d:0.0032;"},
		{"integral double", Double(130000.0), "d:130000;"},
		{"double", Double(23.134), "d:23.134;"},
		{"string", Str("Hello, world;"), `s:13:"Hello, world;";`},
		{"empty string", Str(""), `s:0:"";`},
		{"multibyte string", Str("héllo"), `s:6:"héllo";`},
		{"string with quotes", Str(`a";b`), `s:4:"a";b";`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncode_Array(t *testing.T) {
	v := Array(
		Pair(Int(1), Str("test")),
		Pair(Null(), Bool(true)),
		Pair(Str("subarr"), Array(
			Pair(Int(0), Int(1)),
			Pair(Int(1), Int(2)),
		)),
	)

	got, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `a:3:{i:1;s:4:"test";s:0:"";b:1;s:6:"subarr";a:2:{i:0;i:1;i:1;i:2;}}`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func testObject() *Value {
	return Struct("stdClass",
		F("hello", Bool(true)),
		F("world", Null()),
		F("arrProp", List(Double(22.3), Int(15))),
	)
}

func TestEncode_Struct(t *testing.T) {
	got, err := Encode(testObject())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `O:8:"stdClass":3:{s:5:"hello";b:1;s:5:"world";N;s:7:"arrProp";a:2:{i:0;d:22.3;i:1;i:15;}}`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestEncode_StructUncounted(t *testing.T) {
	c := New(WithHeaderMode(HeaderUncounted))
	got, err := c.Encode(testObject())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `O:8:"stdClass":{s:5:"hello";b:1;s:5:"world";N;s:7:"arrProp";a:2:{i:0;d:22.3;i:1;i:15;}}`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestEncode_EmptyContainers(t *testing.T) {
	tests := []struct {
		value *Value
		want  string
	}{
		{Array(), "a:0:{}"},
		{List(), "a:0:{}"},
		{Struct("Foo"), `O:3:"Foo":0:{}`},
	}
	for _, tt := range tests {
		got, err := Encode(tt.value)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("got %s, want %s", got, tt.want)
		}
	}
}

func TestEncode_KeyCoercion(t *testing.T) {
	v := Array(
		Pair(Null(), Int(1)),
		Pair(Bool(true), Int(2)),
		Pair(Bool(false), Int(3)),
		Pair(Double(7.9), Int(4)),
		Pair(Double(-2.5), Int(5)),
	)
	got, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `a:5:{s:0:"";i:1;i:1;i:2;i:0;i:3;i:7;i:4;i:-2;i:5;}`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestEncode_Unsupported(t *testing.T) {
	tests := []struct {
		name     string
		value    *Value
		wantPath string
	}{
		{"closure", Struct("Closure"), ""},
		{"anonymous class", Struct("class@anonymous/app/Foo.php:12$0", F("omg", Str("i wont serialize"))), ""},
		{"nested closure", List(Int(1), Array(Pair(Str("cb"), Struct("Closure")))), `[1]["cb"]`},
		{"closure in field", Struct("Job", F("handler", Struct("Closure"))), ".handler"},
		{"array key", Array(Pair(List(), Int(1))), ""},
		{"struct key", Array(Pair(Struct("Foo"), Int(1))), ""},
		{"nan key", Array(Pair(Double(math.NaN()), Int(1))), ""},
		{"huge double key", Array(Pair(Double(1e19), Int(1))), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.value)
			if err == nil {
				t.Fatalf("expected error, got %q", got)
			}
			if !errors.Is(err, ErrUnsupportedType) {
				t.Errorf("expected ErrUnsupportedType, got %v", err)
			}
			if got != "" {
				t.Errorf("expected no output, got %q", got)
			}
			var te *TypeError
			if !errors.As(err, &te) {
				t.Fatalf("expected *TypeError, got %T", err)
			}
			if te.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", te.Path, tt.wantPath)
			}
		})
	}
}

func TestEncode_DenylistOption(t *testing.T) {
	c := New(WithDenylist(regexp.MustCompile(`^Secret`)))

	if _, err := c.Encode(Struct("SecretToken")); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType for custom pattern, got %v", err)
	}
	if _, err := c.Encode(Struct("Closure")); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("default patterns must stay active, got %v", err)
	}
	if _, err := c.Encode(Struct("Token")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAppendEncode_NoPartialOutput(t *testing.T) {
	prefix := []byte("prefix:")
	v := List(Str("ok"), Str("fine"), Struct("Closure"))

	out, err := New().AppendEncode(prefix, v)
	if err == nil {
		t.Fatal("expected error")
	}
	if string(out) != "prefix:" {
		t.Errorf("expected dst unchanged, got %q", out)
	}

	out, err = New().AppendEncode(prefix, Int(5))
	if err != nil {
		t.Fatalf("AppendEncode failed: %v", err)
	}
	if string(out) != "prefix:i:5;" {
		t.Errorf("got %q", out)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	v := testObject()
	first, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if again != first {
			t.Fatalf("non-deterministic output\n  first: %s\n  again: %s", first, again)
		}
	}
}

func TestEncode_MaxDepth(t *testing.T) {
	nested := func(n int) *Value {
		v := Int(1)
		for i := 0; i < n; i++ {
			v = List(v)
		}
		return v
	}

	c := New(WithMaxDepth(3))
	if _, err := c.Encode(nested(3)); err != nil {
		t.Errorf("depth 3 should encode: %v", err)
	}
	_, err := c.Encode(nested(4))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("depth 4 should fail with ErrUnsupportedType, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "nesting depth") {
		t.Errorf("unexpected message: %v", err)
	}
}

// ============================================================
// Double Formatting Tests
// ============================================================

func TestFormatDouble(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.0032, "0.0032"},
		{130000, "130000"},
		{1.3e5, "130000"},
		{22.3, "22.3"},
		{23.134, "23.134"},
		{2.1, "2.1"},
		{0.1, "0.1"},
		{0.5, "0.5"},
		{-1.5, "-1.5"},
		{1, "1"},
		{0, "0"},
		{math.Copysign(0, -1), "-0"},
		{0.0001, "0.0001"},
		{0.00001, "1.0E-5"},
		{1.5e-7, "1.5E-7"},
		{1e16, "10000000000000000"},
		{1e17, "1.0E+17"},
		{1e25, "1.0E+25"},
		{-1.2345e30, "-1.2345E+30"},
		{math.MaxFloat64, "1.7976931348623157E+308"},
		{5e-324, "5.0E-324"},
		{math.Inf(1), "INF"},
		{math.Inf(-1), "-INF"},
		{math.NaN(), "NAN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatDouble(tt.in); got != tt.want {
				t.Errorf("FormatDouble(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
