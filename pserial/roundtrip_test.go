package pserial

import (
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"sync"
	"testing"
)

// ============================================================
// Round-trip Tests
// ============================================================

func TestRoundTrip_Fixed(t *testing.T) {
	tests := []struct {
		name  string
		value *Value
	}{
		{"null", Null()},
		{"max int", Int(math.MaxInt64)},
		{"min int", Int(math.MinInt64)},
		{"tiny double", Double(5e-324)},
		{"huge double", Double(math.MaxFloat64)},
		{"negative zero", Double(math.Copysign(0, -1))},
		{"inf", Double(math.Inf(1))},
		{"nan", Double(math.NaN())},
		{"binary string", Str("\x00\xff\"\n;}")},
		{"object", testObject()},
		{"duplicates", Array(Pair(Str("k"), Int(1)), Pair(Str("k"), Int(2)))},
		{"sparse", Array(Pair(Int(-5), Null()), Pair(Int(100), Str("x")))},
		{"nested struct", Struct("Outer",
			F("inner", Struct("Inner", F("list", List(Int(1), Double(0.1))))),
			F("", Str("empty field name")),
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRoundTrip(t, New(), tt.value)
			assertRoundTrip(t, New(WithHeaderMode(HeaderUncounted)), tt.value)
		})
	}
}

func TestRoundTrip_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c := New()
	for i := 0; i < 300; i++ {
		v := randomValue(rng, 0)
		assertRoundTrip(t, c, v)
	}
}

func TestRoundTrip_RandomDoubles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		f := math.Float64frombits(rng.Uint64())
		if math.IsNaN(f) {
			continue
		}
		text, err := Encode(Double(f))
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", f, err)
		}
		back, err := Decode(text)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", text, err)
		}
		got, _ := back.AsDouble()
		if math.Float64bits(got) != math.Float64bits(f) {
			t.Fatalf("%s decoded to %v, want %v", text, got, f)
		}
	}
}

func assertRoundTrip(t *testing.T, c *Codec, v *Value) {
	t.Helper()
	text, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v\n%s", err, Dump(v))
	}
	back, err := c.Decode(text)
	if err != nil {
		t.Fatalf("Decode failed: %v\ntext: %s", err, text)
	}
	if !Equal(v, back) {
		t.Fatalf("round-trip mismatch\ntext: %s\nwant:\n%s\ngot:\n%s", text, Dump(v), Dump(back))
	}
	again, err := c.Encode(back)
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}
	if again != text {
		t.Fatalf("re-encode differs\nfirst: %s\nagain: %s", text, again)
	}
}

// randomValue builds a value whose array keys are already Int or Str,
// so it survives a round-trip unchanged.
func TestRoundTrip_ConcurrentCodec(t *testing.T) {
	reg := NewMapRegistry()
	reg.RegisterFunc("Rand0", func(s *StructValue) (any, error) { return len(s.Fields), nil })
	c := New(
		WithRegistry(reg, false),
		WithDenylist(regexp.MustCompile(`^Secret`)),
	)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				v := randomValue(rng, 0)
				text, err := c.Encode(v)
				if err != nil {
					t.Errorf("Encode failed: %v", err)
					return
				}
				back, err := c.Decode(text)
				if err != nil {
					t.Errorf("Decode(%q) failed: %v", text, err)
					return
				}
				if !Equal(v, back) {
					t.Errorf("round trip mismatch for %q", text)
					return
				}
				var native any
				if err := c.Unmarshal([]byte(text), &native); err != nil {
					t.Errorf("Unmarshal(%q) failed: %v", text, err)
					return
				}
				if _, err := c.Encode(Struct("SecretKey")); err == nil {
					t.Error("denylisted struct should fail to encode")
					return
				}
			}
		}(int64(g))
	}
	wg.Wait()
}

func randomValue(rng *rand.Rand, depth int) *Value {
	max := 7
	if depth >= 4 {
		max = 5
	}
	switch rng.Intn(max) {
	case 0:
		return Null()
	case 1:
		return Bool(rng.Intn(2) == 1)
	case 2:
		return Int(rng.Int63() - rng.Int63())
	case 3:
		switch rng.Intn(4) {
		case 0:
			return Double(rng.NormFloat64() * 1e6)
		case 1:
			return Double(math.Ldexp(rng.Float64(), rng.Intn(2000)-1000))
		case 2:
			return Double(float64(rng.Intn(1000)))
		default:
			return Double(math.NaN())
		}
	case 4:
		return Str(randomString(rng))
	case 5:
		n := rng.Intn(5)
		entries := make([]Entry, n)
		for i := range entries {
			var key *Value
			if rng.Intn(2) == 0 {
				key = Int(int64(rng.Intn(10)))
			} else {
				key = Str(randomString(rng))
			}
			entries[i] = Pair(key, randomValue(rng, depth+1))
		}
		return Array(entries...)
	default:
		n := rng.Intn(4)
		fields := make([]Field, n)
		for i := range fields {
			fields[i] = F("f"+strconv.Itoa(i), randomValue(rng, depth+1))
		}
		return Struct("Rand"+strconv.Itoa(rng.Intn(3)), fields...)
	}
}

func randomString(rng *rand.Rand) string {
	b := make([]byte, rng.Intn(12))
	for i := range b {
		b[i] = byte(rng.Intn(256))
	}
	return string(b)
}
