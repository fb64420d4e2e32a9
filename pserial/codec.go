package pserial

import (
	"fmt"
	"regexp"
)

// DefaultMaxDepth bounds array/struct nesting for both directions.
const DefaultMaxDepth = 512

// HeaderMode selects the struct header variant.
type HeaderMode uint8

const (
	// HeaderCounted writes O:<len>:"<name>":<n>:{...}, matching the
	// array header. This is what PHP's serialize() produces.
	HeaderCounted HeaderMode = iota

	// HeaderUncounted writes O:<len>:"<name>":{...}. Fields are read
	// until the closing brace.
	HeaderUncounted
)

// String returns the mode name.
func (m HeaderMode) String() string {
	switch m {
	case HeaderCounted:
		return "counted"
	case HeaderUncounted:
		return "uncounted"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// ParseHeaderMode parses a mode name.
func ParseHeaderMode(s string) (HeaderMode, error) {
	switch s {
	case "counted", "":
		return HeaderCounted, nil
	case "uncounted":
		return HeaderUncounted, nil
	default:
		return 0, fmt.Errorf("pserial: unknown header mode %q", s)
	}
}

// DefaultDenylist matches struct names that stand for runtime closures
// and anonymous classes. Such values carry behavior, not data.
var DefaultDenylist = []*regexp.Regexp{
	regexp.MustCompile(`^class@anonymous`),
	regexp.MustCompile(`^Closure`),
}

// Options configures a Codec.
type Options struct {
	// MaxDepth bounds nesting (default: DefaultMaxDepth)
	MaxDepth int

	// HeaderMode selects the struct header variant
	HeaderMode HeaderMode

	// Denylist holds struct name patterns the encoder refuses
	Denylist []*regexp.Regexp

	// Registry resolves decoded structs in Unmarshal (optional)
	Registry Registry

	// Strict makes Unmarshal fail on structs the registry does not know
	Strict bool
}

// DefaultOptions returns the options used by the package-level functions.
func DefaultOptions() Options {
	return Options{
		MaxDepth:   DefaultMaxDepth,
		HeaderMode: HeaderCounted,
		Denylist:   DefaultDenylist,
	}
}

// Option configures a Codec.
type Option func(*Options)

// WithMaxDepth sets the nesting limit. Values <= 0 restore the default.
func WithMaxDepth(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			n = DefaultMaxDepth
		}
		o.MaxDepth = n
	}
}

// WithHeaderMode selects the struct header variant.
func WithHeaderMode(m HeaderMode) Option {
	return func(o *Options) {
		o.HeaderMode = m
	}
}

// WithDenylist adds struct name patterns to the default denylist.
func WithDenylist(patterns ...*regexp.Regexp) Option {
	return func(o *Options) {
		list := make([]*regexp.Regexp, 0, len(o.Denylist)+len(patterns))
		list = append(list, o.Denylist...)
		o.Denylist = append(list, patterns...)
	}
}

// WithRegistry sets the registry used by Unmarshal to materialize structs.
func WithRegistry(reg Registry, strict bool) Option {
	return func(o *Options) {
		o.Registry = reg
		o.Strict = strict
	}
}

// Codec encodes and decodes the wire format with fixed options.
// A Codec holds no mutable state and is safe for concurrent use.
type Codec struct {
	opts Options
}

// New creates a Codec.
func New(opts ...Option) *Codec {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return &Codec{opts: o}
}

// Options returns a copy of the codec options.
func (c *Codec) Options() Options {
	return c.opts
}

var defaultCodec = New()

// Encode converts a Value to wire text using default options.
func Encode(v *Value) (string, error) {
	return defaultCodec.Encode(v)
}

// Decode parses wire text into a Value using default options.
func Decode(text string) (*Value, error) {
	return defaultCodec.Decode(text)
}

// DecodeBytes parses wire bytes into a Value using default options.
func DecodeBytes(data []byte) (*Value, error) {
	return defaultCodec.Decode(string(data))
}
