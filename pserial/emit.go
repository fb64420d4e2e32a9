package pserial

import (
	"fmt"
	"math"
	"strconv"
)

// Encode converts a Value to wire text. On error nothing is returned:
// a failure deep inside a subtree aborts the whole call.
func (c *Codec) Encode(v *Value) (string, error) {
	buf, err := c.AppendEncode(nil, v)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// AppendEncode appends the wire form of v to dst. On error dst is
// returned unchanged.
func (c *Codec) AppendEncode(dst []byte, v *Value) ([]byte, error) {
	e := &encoder{buf: dst, opts: &c.opts}
	if err := e.encode(v, 0); err != nil {
		return dst[:len(dst):len(dst)], err
	}
	return e.buf, nil
}

type encoder struct {
	buf  []byte
	opts *Options
}

// encode writes v. depth is the number of enclosing containers.
func (e *encoder) encode(v *Value, depth int) error {
	switch v.Kind() {
	case KindNull:
		e.buf = append(e.buf, 'N', ';')

	case KindBool:
		if v.boolVal {
			e.buf = append(e.buf, "b:1;"...)
		} else {
			e.buf = append(e.buf, "b:0;"...)
		}

	case KindInt:
		e.buf = append(e.buf, 'i', ':')
		e.buf = strconv.AppendInt(e.buf, v.intVal, 10)
		e.buf = append(e.buf, ';')

	case KindDouble:
		e.buf = append(e.buf, 'd', ':')
		e.buf = appendDouble(e.buf, v.floatVal)
		e.buf = append(e.buf, ';')

	case KindStr:
		e.writeStr(v.strVal)

	case KindArray:
		return e.encodeArray(v, depth)

	case KindStruct:
		return e.encodeStruct(v, depth)

	default:
		return &TypeError{Reason: fmt.Sprintf("unknown kind %d", v.kind)}
	}
	return nil
}

// writeStr writes s:<byte-length>:"<bytes>";
func (e *encoder) writeStr(s string) {
	e.buf = append(e.buf, 's', ':')
	e.buf = strconv.AppendInt(e.buf, int64(len(s)), 10)
	e.buf = append(e.buf, ':', '"')
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, '"', ';')
}

func (e *encoder) enter(depth int) error {
	if depth+1 > e.opts.MaxDepth {
		return &TypeError{Reason: fmt.Sprintf("nesting depth exceeds %d", e.opts.MaxDepth)}
	}
	return nil
}

func (e *encoder) encodeArray(v *Value, depth int) error {
	if err := e.enter(depth); err != nil {
		return err
	}

	e.buf = append(e.buf, 'a', ':')
	e.buf = strconv.AppendInt(e.buf, int64(len(v.arrVal)), 10)
	e.buf = append(e.buf, ':', '{')

	for _, entry := range v.arrVal {
		key, err := CoerceKey(entry.Key)
		if err != nil {
			return err
		}
		// key is Int or Str from here on
		if err := e.encode(key, depth+1); err != nil {
			return err
		}
		if err := e.encode(entry.Value, depth+1); err != nil {
			return prefixPath(err, keySegment(key))
		}
	}

	e.buf = append(e.buf, '}')
	return nil
}

func (e *encoder) encodeStruct(v *Value, depth int) error {
	s := v.structVal
	for _, re := range e.opts.Denylist {
		if re.MatchString(s.Name) {
			return &TypeError{Reason: fmt.Sprintf("struct name %q is denylisted", s.Name)}
		}
	}
	if err := e.enter(depth); err != nil {
		return err
	}

	e.buf = append(e.buf, 'O', ':')
	e.buf = strconv.AppendInt(e.buf, int64(len(s.Name)), 10)
	e.buf = append(e.buf, ':', '"')
	e.buf = append(e.buf, s.Name...)
	e.buf = append(e.buf, '"', ':')
	if e.opts.HeaderMode == HeaderCounted {
		e.buf = strconv.AppendInt(e.buf, int64(len(s.Fields)), 10)
		e.buf = append(e.buf, ':')
	}
	e.buf = append(e.buf, '{')

	for _, f := range s.Fields {
		e.writeStr(f.Name)
		if err := e.encode(f.Value, depth+1); err != nil {
			return prefixPath(err, "."+f.Name)
		}
	}

	e.buf = append(e.buf, '}')
	return nil
}

// CoerceKey maps an array key to Int or Str the way PHP arrays do:
// null -> "", bool -> 0/1, double -> truncated int. Other formats use
// it so every encoding sees the same keys.
func CoerceKey(k *Value) (*Value, error) {
	switch k.Kind() {
	case KindInt, KindStr:
		return k, nil
	case KindNull:
		return Str(""), nil
	case KindBool:
		if k.boolVal {
			return Int(1), nil
		}
		return Int(0), nil
	case KindDouble:
		f := math.Trunc(k.floatVal)
		if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, &TypeError{Reason: fmt.Sprintf("double key %s has no integer form", FormatDouble(k.floatVal))}
		}
		return Int(int64(f)), nil
	default:
		return nil, &TypeError{Reason: fmt.Sprintf("array key must be int or string, got %s", k.Kind())}
	}
}

func keySegment(k *Value) string {
	if k.Kind() == KindInt {
		return "[" + strconv.FormatInt(k.intVal, 10) + "]"
	}
	return "[" + strconv.Quote(k.strVal) + "]"
}

// prefixPath prepends a path segment while the error unwinds.
func prefixPath(err error, seg string) error {
	if te, ok := err.(*TypeError); ok {
		te.Path = seg + te.Path
	}
	return err
}
