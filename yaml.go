package ivbridge

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAML value files use plain YAML for scalars, sequences (List) and
// mappings, plus two local tags:
//
//	point: !tuple [1, 2]
//	weights: !tensor {dtype: float32, shape: [2, 2], data: [1, 2, 3, 4]}
//
// Anchors, aliases and merge keys (<<: *base) are expanded; keys written
// in the mapping itself win over merged ones. Timestamps and other
// scalar tags are rejected.
const (
	yamlTupleTag  = "!tuple"
	yamlTensorTag = "!tensor"
)

var (
	_ yaml.Marshaler   = Value{}
	_ yaml.Unmarshaler = (*Value)(nil)
)

// ParseValueYAML parses one YAML document into a Value.
func ParseValueYAML(data []byte) (Value, error) {
	var v Value
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Value{}, fmt.Errorf("failed to parse value YAML: %w", err)
	}
	return v, nil
}

// MarshalValueYAML renders v as a YAML document.
func MarshalValueYAML(v Value) ([]byte, error) {
	return yaml.Marshal(v)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	x, err := valueFromNode(node, 0)
	if err != nil {
		return err
	}
	*v = x
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	return nodeFromValue(v, 0)
}

func valueFromNode(node *yaml.Node, depth int) (Value, error) {
	if depth > maxNesting {
		return Value{}, fmt.Errorf("line %d: nesting deeper than %d", node.Line, maxNesting)
	}
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return None(), nil
		}
		return valueFromNode(node.Content[0], depth)
	case yaml.AliasNode:
		return valueFromNode(node.Alias, depth+1)
	case yaml.ScalarNode:
		return scalarFromNode(node)
	case yaml.SequenceNode:
		seq := make([]Value, len(node.Content))
		for i, child := range node.Content {
			var err error
			if seq[i], err = valueFromNode(child, depth+1); err != nil {
				return Value{}, err
			}
		}
		switch node.ShortTag() {
		case yamlTupleTag:
			return Value{kind: KindTuple, seq: seq}, nil
		case "!!seq":
			return Value{kind: KindList, seq: seq}, nil
		}
		return Value{}, fmt.Errorf("line %d: unsupported sequence tag %s", node.Line, node.Tag)
	case yaml.MappingNode:
		switch node.ShortTag() {
		case yamlTensorTag:
			return tensorFromNode(node)
		case "!!map":
		default:
			return Value{}, fmt.Errorf("line %d: unsupported mapping tag %s", node.Line, node.Tag)
		}
		var merged []Entry
		entries := make([]Entry, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].ShortTag() == "!!merge" {
				m, err := mergedEntries(node.Content[i+1], depth+1)
				if err != nil {
					return Value{}, err
				}
				merged = append(merged, m...)
				continue
			}
			k, err := valueFromNode(node.Content[i], depth+1)
			if err != nil {
				return Value{}, err
			}
			val, err := valueFromNode(node.Content[i+1], depth+1)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, Entry{Key: k, Value: val})
		}
		return Mapping(append(merged, entries...)...), nil
	}
	return Value{}, fmt.Errorf("line %d: unsupported YAML node kind %v", node.Line, node.Kind)
}

// mergedEntries expands the value of a merge key: one mapping, or a
// sequence of mappings where earlier ones take precedence.
func mergedEntries(node *yaml.Node, depth int) ([]Entry, error) {
	for node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	sources := []*yaml.Node{node}
	if node.Kind == yaml.SequenceNode {
		sources = slices.Clone(node.Content)
		slices.Reverse(sources)
	}
	var out []Entry
	for _, src := range sources {
		v, err := valueFromNode(src, depth)
		if err != nil {
			return nil, err
		}
		if v.kind != KindMapping {
			return nil, fmt.Errorf("line %d: merge key needs a mapping, got %s", src.Line, v.kind)
		}
		out = append(out, v.Entries()...)
	}
	return out, nil
}

func scalarFromNode(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return None(), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return Value{}, err
		}
		return Double(f), nil
	case "!!str", "!!binary":
		var s string
		if err := node.Decode(&s); err != nil {
			return Value{}, err
		}
		return String(s), nil
	}
	return Value{}, fmt.Errorf("line %d: unsupported scalar tag %s", node.Line, node.Tag)
}

type yamlTensor struct {
	DType string      `yaml:"dtype"`
	Shape []int       `yaml:"shape"`
	Data  []yaml.Node `yaml:"data"`
}

func tensorFromNode(node *yaml.Node) (Value, error) {
	var yt yamlTensor
	if err := node.Decode(&yt); err != nil {
		return Value{}, err
	}
	dtype, err := ParseDType(yt.DType)
	if err != nil {
		return Value{}, fmt.Errorf("line %d: %w", node.Line, err)
	}
	shape := yt.Shape
	if shape == nil {
		shape = []int{len(yt.Data)}
	}
	size := dtype.ItemSize()
	data := make([]byte, len(yt.Data)*size)
	for i := range yt.Data {
		var n int64
		var f float64
		switch {
		case dtype == DTypeBool:
			var b bool
			if err := yt.Data[i].Decode(&b); err != nil {
				return Value{}, err
			}
			if b {
				f = 1
			}
		case dtype.IsFloat():
			if err := yt.Data[i].Decode(&f); err != nil {
				return Value{}, err
			}
		default:
			if err := yt.Data[i].Decode(&n); err != nil {
				return Value{}, err
			}
		}
		putElement(data[i*size:(i+1)*size], dtype, n, f)
	}
	t, err := NewTensor(dtype, shape, data)
	if err != nil {
		return Value{}, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return TensorValue(t), nil
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func nodeFromValue(v Value, depth int) (*yaml.Node, error) {
	if depth > maxNesting {
		return nil, interopErrorf(UnsupportedVariant, "", "nesting deeper than %d", maxNesting)
	}
	switch v.kind {
	case KindNone:
		return scalarNode("!!null", "null"), nil
	case KindBool:
		return scalarNode("!!bool", strconv.FormatBool(v.i != 0)), nil
	case KindInt:
		return scalarNode("!!int", strconv.FormatInt(v.i, 10)), nil
	case KindDouble:
		return scalarNode("!!float", yamlFloat(v.f)), nil
	case KindString:
		return scalarNode("!!str", v.s), nil
	case KindTensor:
		return tensorNode(v.t), nil
	case KindList, KindTuple:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if v.kind == KindTuple {
			n.Tag = yamlTupleTag
			n.Style = yaml.FlowStyle
		}
		for _, e := range v.seq {
			child, err := nodeFromValue(e, depth+1)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	case KindMapping:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i := range v.m.keys {
			k, err := nodeFromValue(v.m.keys[i], depth+1)
			if err != nil {
				return nil, err
			}
			val, err := nodeFromValue(v.m.values[i], depth+1)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, k, val)
		}
		return n, nil
	}
	return nil, interopErrorf(UnsupportedVariant, "", "%s value has no YAML form", v.kind)
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func tensorNode(t *Tensor) *yaml.Node {
	shape := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for _, d := range t.shape {
		shape.Content = append(shape.Content, scalarNode("!!int", strconv.Itoa(d)))
	}
	data := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for i := 0; i < t.Numel(); i++ {
		var elem *yaml.Node
		switch {
		case t.dtype == DTypeBool:
			elem = scalarNode("!!bool", strconv.FormatBool(t.data[i] != 0))
		case t.dtype.IsFloat():
			elem = scalarNode("!!float", yamlFloat(t.Float64At(i)))
		default:
			elem = scalarNode("!!int", strconv.FormatInt(t.Int64At(i), 10))
		}
		data.Content = append(data.Content, elem)
	}
	return &yaml.Node{
		Kind:  yaml.MappingNode,
		Tag:   yamlTensorTag,
		Style: yaml.FlowStyle,
		Content: []*yaml.Node{
			scalarNode("!!str", "dtype"), scalarNode("!!str", t.dtype.String()),
			scalarNode("!!str", "shape"), shape,
			scalarNode("!!str", "data"), data,
		},
	}
}
