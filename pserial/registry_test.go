package pserial

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type point struct {
	X, Y int64
}

func (p point) MarshalPHPStruct() (string, []Field, error) {
	return "Point", []Field{F("x", Int(p.X)), F("y", Int(p.Y))}, nil
}

func pointRegistry() *MapRegistry {
	reg := NewMapRegistry()
	reg.RegisterFunc("Point", func(s *StructValue) (any, error) {
		var p point
		for _, f := range s.Fields {
			n, err := f.Value.AsInt()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			switch f.Name {
			case "x":
				p.X = n
			case "y":
				p.Y = n
			}
		}
		return p, nil
	})
	return reg
}

func TestResolve_Known(t *testing.T) {
	v, err := Decode(`O:5:"Point":2:{s:1:"x";i:3;s:1:"y";i:-4;}`)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, err := Resolve(v, pointRegistry(), true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != (point{X: 3, Y: -4}) {
		t.Errorf("got %#v", got)
	}
}

func TestResolve_Unknown(t *testing.T) {
	v := Struct("Mystery", F("a", Int(1)))

	got, err := Resolve(v, pointRegistry(), false)
	if err != nil {
		t.Fatalf("lenient Resolve failed: %v", err)
	}
	if gv, ok := got.(*Value); !ok || !Equal(gv, v) {
		t.Errorf("lenient Resolve should return the generic value, got %#v", got)
	}

	_, err = Resolve(v, pointRegistry(), true)
	if !errors.Is(err, ErrUnknownStruct) {
		t.Fatalf("expected ErrUnknownStruct, got %v", err)
	}
	var use *UnknownStructError
	if !errors.As(err, &use) || use.Name != "Mystery" {
		t.Errorf("expected UnknownStructError for Mystery, got %v", err)
	}

	// No registry at all behaves like an empty one
	if _, err := Resolve(v, nil, true); !errors.Is(err, ErrUnknownStruct) {
		t.Errorf("expected ErrUnknownStruct with nil registry, got %v", err)
	}
}

func TestResolve_FactoryError(t *testing.T) {
	v := Struct("Point", F("x", Str("three")))
	_, err := Resolve(v, pointRegistry(), true)
	if err == nil {
		t.Fatal("expected factory error")
	}
	if errors.Is(err, ErrUnknownStruct) {
		t.Errorf("factory failure must not look like an unknown struct: %v", err)
	}
}

func TestResolve_NonStruct(t *testing.T) {
	v := Int(5)
	got, err := Resolve(v, pointRegistry(), true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.(*Value) != v {
		t.Errorf("non-struct should be returned unchanged")
	}
}

func TestToNative_ResolvesNested(t *testing.T) {
	v := List(
		Struct("Point", F("x", Int(1)), F("y", Int(2))),
		Array(Pair(Str("p"), Struct("Point", F("x", Int(5)), F("y", Int(6))))),
	)
	got, err := ToNative(v, pointRegistry(), true)
	if err != nil {
		t.Fatalf("ToNative failed: %v", err)
	}
	list := got.([]any)
	if list[0] != (point{X: 1, Y: 2}) {
		t.Errorf("list[0] = %#v", list[0])
	}
	if m := list[1].(map[string]any); m["p"] != (point{X: 5, Y: 6}) {
		t.Errorf("list[1][p] = %#v", m["p"])
	}

	_, err = ToNative(List(Struct("Nope")), pointRegistry(), true)
	if !errors.Is(err, ErrUnknownStruct) {
		t.Errorf("expected ErrUnknownStruct, got %v", err)
	}
}

func TestCodec_UnmarshalWithRegistry(t *testing.T) {
	c := New(WithRegistry(pointRegistry(), true))

	data, err := c.Marshal(point{X: 7, Y: 8})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `O:5:"Point":2:{s:1:"x";i:7;s:1:"y";i:8;}` {
		t.Errorf("Marshal = %s", data)
	}

	var out any
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out != (point{X: 7, Y: 8}) {
		t.Errorf("Unmarshal = %#v", out)
	}

	var generic *Value
	if err := c.Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal into *Value failed: %v", err)
	}
	if generic.Kind() != KindStruct {
		t.Errorf("expected generic struct, got %s", generic.Kind())
	}

	var wrong int
	if err := c.Unmarshal(data, &wrong); err == nil {
		t.Error("expected error for unsupported target")
	}
}

func TestMapRegistry_Concurrent(t *testing.T) {
	reg := NewMapRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("T%d", i)
			reg.RegisterFunc(name, func(s *StructValue) (any, error) { return s.Name, nil })
			if _, ok := reg.Lookup(name); !ok {
				t.Errorf("lookup %s failed", name)
			}
		}(i)
	}
	wg.Wait()
	if reg.Len() != 8 {
		t.Errorf("Len = %d, want 8", reg.Len())
	}
}
