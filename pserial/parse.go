package pserial

import (
	"fmt"
	"strconv"
)

// Decode parses wire text into a Value. The whole input must be
// exactly one value; trailing bytes are an error. Decoded structs are
// generic: no registry lookup happens here.
func (c *Codec) Decode(text string) (*Value, error) {
	d := &decoder{data: text, opts: &c.opts}
	v, err := d.decodeValue(0)
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, d.fail("trailing data after value")
	}
	return v, nil
}

// DecodeBytes parses wire bytes into a Value.
func (c *Codec) DecodeBytes(data []byte) (*Value, error) {
	return c.Decode(string(data))
}

// decoder is a cursor over the input. Every sub-parser consumes
// exactly its own span, trailing ';' or '}' included.
type decoder struct {
	data string
	pos  int
	opts *Options
}

func (d *decoder) fail(format string, args ...any) error {
	return d.failAt(d.pos, format, args...)
}

func (d *decoder) failAt(offset int, format string, args ...any) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...), Offset: offset, kind: ErrMalformedInput}
}

// decodeValue dispatches on the tag byte. depth is the number of
// enclosing containers.
func (d *decoder) decodeValue(depth int) (*Value, error) {
	if d.pos >= len(d.data) {
		return nil, d.fail("unexpected end of input")
	}

	switch tag := d.data[d.pos]; tag {
	case 'N':
		d.pos++
		if err := d.expect(';'); err != nil {
			return nil, err
		}
		return Null(), nil

	case 'b':
		return d.decodeBool()

	case 'i':
		return d.decodeInt()

	case 'd':
		return d.decodeDouble()

	case 's':
		if err := d.expectLiteral("s:"); err != nil {
			return nil, err
		}
		s, err := d.readStrBody()
		if err != nil {
			return nil, err
		}
		if err := d.expect(';'); err != nil {
			return nil, err
		}
		return Str(s), nil

	case 'a':
		return d.decodeArray(depth)

	case 'O':
		return d.decodeStruct(depth)

	default:
		return nil, &SyntaxError{
			Msg:    fmt.Sprintf("unknown type tag %q", tag),
			Offset: d.pos,
			kind:   ErrUnknownType,
		}
	}
}

func (d *decoder) decodeBool() (*Value, error) {
	if err := d.expectLiteral("b:"); err != nil {
		return nil, err
	}
	if d.pos >= len(d.data) {
		return nil, d.fail("unexpected end of input in bool")
	}
	var b bool
	switch d.data[d.pos] {
	case '0':
	case '1':
		b = true
	default:
		return nil, d.fail("invalid bool digit %q", d.data[d.pos])
	}
	d.pos++
	if err := d.expect(';'); err != nil {
		return nil, err
	}
	return Bool(b), nil
}

func (d *decoder) decodeInt() (*Value, error) {
	if err := d.expectLiteral("i:"); err != nil {
		return nil, err
	}
	start := d.pos
	if d.pos < len(d.data) && d.data[d.pos] == '-' {
		d.pos++
	}
	digitsStart := d.pos
	for d.pos < len(d.data) && isDigit(d.data[d.pos]) {
		d.pos++
	}
	if d.pos == digitsStart {
		if d.pos >= len(d.data) {
			return nil, d.fail("unexpected end of input in int")
		}
		return nil, d.fail("expected digit, got %q", d.data[d.pos])
	}
	tok := d.data[start:d.pos]
	if err := d.expect(';'); err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return nil, d.failAt(start, "integer %s out of range", tok)
	}
	return Int(n), nil
}

func (d *decoder) decodeDouble() (*Value, error) {
	if err := d.expectLiteral("d:"); err != nil {
		return nil, err
	}
	start := d.pos
	end := start
	for end < len(d.data) && d.data[end] != ';' {
		end++
	}
	if end >= len(d.data) {
		d.pos = end
		return nil, d.fail("unterminated double")
	}
	tok := d.data[start:end]
	f, ok := parseDouble(tok)
	if !ok {
		return nil, d.failAt(start, "invalid double %q", tok)
	}
	d.pos = end + 1
	return Double(f), nil
}

// readStrBody reads <n>:"<n bytes>" and stops after the closing quote.
// The length is authoritative; the payload is never scanned for '"'.
func (d *decoder) readStrBody() (string, error) {
	n, err := d.readLength()
	if err != nil {
		return "", err
	}
	if err := d.expectLiteral(`:"`); err != nil {
		return "", err
	}
	if n > len(d.data)-d.pos {
		return "", d.fail("string length %d exceeds remaining input", n)
	}
	s := d.data[d.pos : d.pos+n]
	d.pos += n
	if err := d.expect('"'); err != nil {
		return "", err
	}
	return s, nil
}

// minEntrySize is the shortest possible key/value pair (i:0;N;).
const minEntrySize = 6

func (d *decoder) readCount() (int, error) {
	start := d.pos
	n, err := d.readLength()
	if err != nil {
		return 0, err
	}
	if n > (len(d.data)-d.pos)/minEntrySize {
		return 0, d.failAt(start, "count %d exceeds remaining input", n)
	}
	return n, nil
}

func (d *decoder) enter(depth int) error {
	if depth+1 > d.opts.MaxDepth {
		return d.fail("nesting depth exceeds %d", d.opts.MaxDepth)
	}
	return nil
}

func (d *decoder) decodeArray(depth int) (*Value, error) {
	if err := d.enter(depth); err != nil {
		return nil, err
	}
	if err := d.expectLiteral("a:"); err != nil {
		return nil, err
	}
	n, err := d.readCount()
	if err != nil {
		return nil, err
	}
	if err := d.expectLiteral(":{"); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		keyStart := d.pos
		key, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		if k := key.Kind(); k != KindInt && k != KindStr {
			return nil, d.failAt(keyStart, "array key must be int or string, got %s", k)
		}
		val, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: val})
	}

	if err := d.expect('}'); err != nil {
		return nil, err
	}
	return Array(entries...), nil
}

func (d *decoder) decodeStruct(depth int) (*Value, error) {
	if err := d.enter(depth); err != nil {
		return nil, err
	}
	if err := d.expectLiteral("O:"); err != nil {
		return nil, err
	}
	name, err := d.readStrBody()
	if err != nil {
		return nil, err
	}
	if err := d.expect(':'); err != nil {
		return nil, err
	}

	n := -1
	if d.opts.HeaderMode == HeaderCounted {
		if n, err = d.readCount(); err != nil {
			return nil, err
		}
		if err := d.expect(':'); err != nil {
			return nil, err
		}
	}
	if err := d.expect('{'); err != nil {
		return nil, err
	}

	var fields []Field
	if n >= 0 {
		fields = make([]Field, 0, n)
	}
	for i := 0; n < 0 || i < n; i++ {
		if n < 0 && d.pos < len(d.data) && d.data[d.pos] == '}' {
			break
		}
		nameStart := d.pos
		key, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		if key.Kind() != KindStr {
			return nil, d.failAt(nameStart, "struct field name must be string, got %s", key.Kind())
		}
		val, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: key.strVal, Value: val})
	}

	if err := d.expect('}'); err != nil {
		return nil, err
	}
	return Struct(name, fields...), nil
}

// readLength reads an unsigned decimal.
func (d *decoder) readLength() (int, error) {
	start := d.pos
	n := 0
	for d.pos < len(d.data) && isDigit(d.data[d.pos]) {
		if n > (maxLength-9)/10 {
			return 0, d.failAt(start, "length overflows")
		}
		n = n*10 + int(d.data[d.pos]-'0')
		d.pos++
	}
	if d.pos == start {
		if d.pos >= len(d.data) {
			return 0, d.fail("unexpected end of input, expected length")
		}
		return 0, d.fail("expected length, got %q", d.data[d.pos])
	}
	return n, nil
}

const maxLength = int(^uint(0) >> 1)

func (d *decoder) expect(c byte) error {
	if d.pos >= len(d.data) {
		return d.fail("unexpected end of input, expected %q", c)
	}
	if d.data[d.pos] != c {
		return d.fail("expected %q, got %q", c, d.data[d.pos])
	}
	d.pos++
	return nil
}

func (d *decoder) expectLiteral(lit string) error {
	for i := 0; i < len(lit); i++ {
		if err := d.expect(lit[i]); err != nil {
			return err
		}
	}
	return nil
}
