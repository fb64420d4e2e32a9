// Package yaml transcodes the value model to and from YAML.
//
// The document is built as a yaml.Node tree so entry order survives.
// Every scalar carries its resolved tag; a struct is a mapping tagged
// !php/object:<name>. Strings that are not valid UTF-8 are written as
// !!binary.
package yaml

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/Neumenon/pserial/pserial"
)

// ObjectTagPrefix prefixes the class name in a struct mapping tag.
const ObjectTagPrefix = "!php/object:"

// ErrExcessiveAliasing is returned when aliases expand into far more
// nodes than the document itself holds.
var ErrExcessiveAliasing = errors.New("document contains excessive aliasing")

type Encoder struct{}

var _ pserial.Format = &Encoder{}

func (e *Encoder) Name() string {
	return "yaml"
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	val, err := pserial.FromNative(v)
	if err != nil {
		return nil, err
	}
	return Encode(val)
}

func (e *Encoder) Unmarshal(data []byte, v any) error {
	val, err := Decode(data)
	if err != nil {
		return err
	}
	return pserial.Assign(val, v, nil, false)
}

func New() *Encoder {
	return &Encoder{}
}

// Encode renders v as a YAML document.
func Encode(v *pserial.Value) ([]byte, error) {
	node, err := toNode(v, 0)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func toNode(v *pserial.Value, depth int) (*yaml.Node, error) {
	if depth > pserial.DefaultMaxDepth {
		return nil, &pserial.TypeError{Reason: fmt.Sprintf("nesting depth exceeds %d", pserial.DefaultMaxDepth)}
	}

	switch v.Kind() {
	case pserial.KindNull:
		return scalar("!!null", "null"), nil
	case pserial.KindBool:
		b, _ := v.AsBool()
		return scalar("!!bool", strconv.FormatBool(b)), nil
	case pserial.KindInt:
		n, _ := v.AsInt()
		return scalar("!!int", strconv.FormatInt(n, 10)), nil
	case pserial.KindDouble:
		f, _ := v.AsDouble()
		return scalar("!!float", formatFloat(f)), nil
	case pserial.KindStr:
		s, _ := v.AsStr()
		return stringNode(s), nil

	case pserial.KindArray:
		entries, _ := v.AsArray()
		if v.IsList() {
			node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for _, e := range entries {
				child, err := toNode(e.Value, depth+1)
				if err != nil {
					return nil, err
				}
				node.Content = append(node.Content, child)
			}
			return node, nil
		}
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, e := range entries {
			key, err := pserial.CoerceKey(e.Key)
			if err != nil {
				return nil, err
			}
			keyNode, err := toNode(key, depth+1)
			if err != nil {
				return nil, err
			}
			valNode, err := toNode(e.Value, depth+1)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, keyNode, valNode)
		}
		return node, nil

	case pserial.KindStruct:
		s, _ := v.AsStruct()
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: ObjectTagPrefix + s.Name}
		for _, f := range s.Fields {
			valNode, err := toNode(f.Value, depth+1)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, stringNode(f.Name), valNode)
		}
		return node, nil
	}
	return nil, &pserial.TypeError{Reason: fmt.Sprintf("unknown kind %s", v.Kind())}
}

func stringNode(s string) *yaml.Node {
	if utf8.ValidString(s) {
		return scalar("!!str", s)
	}
	return scalar("!!binary", base64.StdEncoding.EncodeToString([]byte(s)))
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Decode parses a single YAML document. Untagged scalars resolve by the
// YAML 1.2 core schema; anchors and aliases are followed.
func Decode(data []byte) (*pserial.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return pserial.Null(), nil
	}
	var d decoder
	v, err := d.fromNode(doc.Content[0], 0)
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return v, nil
}

// FromNode converts an already parsed YAML node to a Value. A document
// node converts its first child; an empty document is Null.
func FromNode(n *yaml.Node) (*pserial.Value, error) {
	if n == nil {
		return pserial.Null(), nil
	}
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return pserial.Null(), nil
		}
		n = n.Content[0]
	}
	var d decoder
	return d.fromNode(n, 0)
}

// decoder counts converted nodes so alias expansion stays bounded.
type decoder struct {
	nodes      int
	aliased    int
	aliasDepth int
}

// allowedAliasRatio is the share of converted nodes that may come from
// alias expansion. Small documents may alias freely; the allowance
// shrinks linearly from 99% at 400k nodes to 10% at 4M.
func allowedAliasRatio(nodes int) float64 {
	switch {
	case nodes <= 400_000:
		return 0.99
	case nodes >= 4_000_000:
		return 0.10
	}
	return 0.99 - 0.89*(float64(nodes-400_000)/3_600_000)
}

func (d *decoder) count() error {
	d.nodes++
	if d.aliasDepth > 0 {
		d.aliased++
	}
	if d.aliased > 100 && d.nodes > 1000 &&
		float64(d.aliased)/float64(d.nodes) > allowedAliasRatio(d.nodes) {
		return ErrExcessiveAliasing
	}
	return nil
}

func (d *decoder) fromNode(n *yaml.Node, depth int) (*pserial.Value, error) {
	if depth > pserial.DefaultMaxDepth {
		return nil, fmt.Errorf("nesting depth exceeds %d", pserial.DefaultMaxDepth)
	}
	if err := d.count(); err != nil {
		return nil, err
	}

	switch n.Kind {
	case yaml.AliasNode:
		d.aliasDepth++
		v, err := d.fromNode(n.Alias, depth+1)
		d.aliasDepth--
		return v, err

	case yaml.ScalarNode:
		return fromScalar(n)

	case yaml.SequenceNode:
		values := make([]*pserial.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := d.fromNode(c, depth+1)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return pserial.List(values...), nil

	case yaml.MappingNode:
		if name, ok := strings.CutPrefix(n.Tag, ObjectTagPrefix); ok {
			fields := make([]pserial.Field, 0, len(n.Content)/2)
			for i := 0; i+1 < len(n.Content); i += 2 {
				key, val := n.Content[i], n.Content[i+1]
				if key.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("line %d: struct %s field name must be a scalar", key.Line, name)
				}
				v, err := d.fromNode(val, depth+1)
				if err != nil {
					return nil, err
				}
				fields = append(fields, pserial.Field{Name: key.Value, Value: v})
			}
			return pserial.Struct(name, fields...), nil
		}

		entries := make([]pserial.Entry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, err := d.fromNode(n.Content[i], depth+1)
			if err != nil {
				return nil, err
			}
			if key, err = pserial.CoerceKey(key); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Content[i].Line, err)
			}
			v, err := d.fromNode(n.Content[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			entries = append(entries, pserial.Entry{Key: key, Value: v})
		}
		return pserial.Array(entries...), nil
	}
	return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
}

func fromScalar(n *yaml.Node) (*pserial.Value, error) {
	switch tag := n.ShortTag(); tag {
	case "!!null":
		return pserial.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return pserial.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		return pserial.Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return pserial.Double(f), nil
	case "!!binary":
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), ""))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return pserial.Str(string(b)), nil
	case "!!str", "!!timestamp":
		return pserial.Str(n.Value), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported tag %s", n.Line, tag)
	}
}
