package ivbridge

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

//go:generate go tool stringer -type=Kind,DType -linecomment -output=enum_string.go

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNone    Kind = iota // none
	KindBool                // bool
	KindInt                 // int
	KindDouble              // double
	KindString              // string
	KindTensor              // tensor
	KindList                // list
	KindTuple               // tuple
	KindMapping             // mapping
	KindOpaque              // opaque
)

// Value is the host-side tagged value exchanged with interpreters.
//
// A Value is immutable once constructed and is passed by value. Container
// constructors copy their arguments, so a Value never aliases a slice owned
// by the caller. The zero Value is None.
type Value struct {
	kind Kind
	i    int64 // Bool (0/1) and Int
	f    float64
	s    string
	t    *Tensor
	seq  []Value // List and Tuple
	m    *mapping
	o    *Opaque
}

// Entry is a single key/value pair of a mapping Value.
type Entry struct {
	Key   Value
	Value Value
}

type mapping struct {
	keys   []Value
	values []Value
	index  map[string]int
}

// Opaque boxes an interpreter object that has no native mapping.
//
// The boxed object keeps its interpreter of origin; it can only be converted
// back into that interpreter.
type Opaque struct {
	interp   uint64
	typeName string
	obj      any
}

// InterpreterID returns the id of the interpreter that produced the object.
func (o *Opaque) InterpreterID() uint64 { return o.interp }

// TypeName returns the interpreter's name for the object's type.
func (o *Opaque) TypeName() string { return o.typeName }

// Object returns the boxed interpreter object.
func (o *Opaque) Object() any { return o.obj }

func None() Value { return Value{} }

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

func Int(i int64) Value { return Value{kind: KindInt, i: i} }

func Double(f float64) Value { return Value{kind: KindDouble, f: f} }

func String(s string) Value { return Value{kind: KindString, s: s} }

// TensorValue wraps t. A nil tensor yields None.
func TensorValue(t *Tensor) Value {
	if t == nil {
		return None()
	}
	return Value{kind: KindTensor, t: t}
}

// List returns an ordered sequence of vs.
func List(vs ...Value) Value {
	return Value{kind: KindList, seq: append([]Value(nil), vs...)}
}

// Tuple returns a fixed-size sequence of vs.
func Tuple(vs ...Value) Value {
	return Value{kind: KindTuple, seq: append([]Value(nil), vs...)}
}

// Mapping returns a mapping built from entries in order. A repeated key
// keeps the position of its first occurrence and the value of its last.
func Mapping(entries ...Entry) Value {
	m := &mapping{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		k := keyOf(e.Key)
		if pos, ok := m.index[k]; ok {
			m.values[pos] = e.Value
			continue
		}
		m.index[k] = len(m.keys)
		m.keys = append(m.keys, e.Key)
		m.values = append(m.values, e.Value)
	}
	return Value{kind: KindMapping, m: m}
}

// MappingOf pairs keys[i] with values[i]. It panics if the slices differ
// in length.
func MappingOf(keys, values []Value) Value {
	if len(keys) != len(values) {
		panic(fmt.Sprintf("ivbridge: MappingOf with %d keys and %d values", len(keys), len(values)))
	}
	entries := make([]Entry, len(keys))
	for i := range keys {
		entries[i] = Entry{Key: keys[i], Value: values[i]}
	}
	return Mapping(entries...)
}

// StringMapping is a convenience for mappings keyed by strings. Keys are
// emitted in sorted order since Go maps are unordered.
func StringMapping(fields map[string]Value) Value {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = Entry{Key: String(name), Value: fields[name]}
	}
	return Mapping(entries...)
}

func newOpaque(interp uint64, typeName string, obj any) Value {
	return Value{kind: KindOpaque, o: &Opaque{interp: interp, typeName: typeName, obj: obj}}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) AsBool() (bool, bool) { return v.i != 0, v.kind == KindBool }

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsDouble() (float64, bool) {
	if v.kind != KindDouble {
		return 0, false
	}
	return v.f, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsTensor() (*Tensor, bool) { return v.t, v.kind == KindTensor }

func (v Value) AsOpaque() (*Opaque, bool) { return v.o, v.kind == KindOpaque }

// Len returns the number of elements of a List, Tuple or Mapping and 0 for
// every other kind.
func (v Value) Len() int {
	switch v.kind {
	case KindList, KindTuple:
		return len(v.seq)
	case KindMapping:
		return len(v.m.keys)
	}
	return 0
}

// Index returns element i of a List or Tuple. It panics if v is not a
// sequence or i is out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindList && v.kind != KindTuple {
		panic(fmt.Sprintf("ivbridge: Index on %s value", v.kind))
	}
	return v.seq[i]
}

// Elems returns a copy of the elements of a List or Tuple.
func (v Value) Elems() []Value {
	if v.kind != KindList && v.kind != KindTuple {
		return nil
	}
	return append([]Value(nil), v.seq...)
}

// Entries returns the entries of a Mapping in insertion order.
func (v Value) Entries() []Entry {
	if v.kind != KindMapping {
		return nil
	}
	out := make([]Entry, len(v.m.keys))
	for i := range v.m.keys {
		out[i] = Entry{Key: v.m.keys[i], Value: v.m.values[i]}
	}
	return out
}

// Lookup returns the value stored under key in a Mapping.
func (v Value) Lookup(key Value) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	pos, ok := v.m.index[keyOf(key)]
	if !ok {
		return Value{}, false
	}
	return v.m.values[pos], true
}

// Equal reports whether v and o are deeply equal. Doubles compare by bit
// pattern and mappings compare independently of entry order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindBool, KindInt:
		return v.i == o.i
	case KindDouble:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case KindString:
		return v.s == o.s
	case KindTensor:
		return v.t.Equal(o.t)
	case KindList, KindTuple:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m.keys) != len(o.m.keys) {
			return false
		}
		for k, pos := range v.m.index {
			opos, ok := o.m.index[k]
			if !ok || !v.m.values[pos].Equal(o.m.values[opos]) {
				return false
			}
		}
		return true
	case KindOpaque:
		return v.o.same(o.o)
	}
	return false
}

func (o *Opaque) same(other *Opaque) bool {
	if o == other {
		return true
	}
	if o.interp != other.interp || o.typeName != other.typeName {
		return false
	}
	return sameObject(o.obj, other.obj)
}

// sameObject reports object identity for comparable dynamic types.
func sameObject(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == b
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// String renders v in a Python-like literal form.
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.kind {
	case KindNone:
		sb.WriteString("None")
	case KindBool:
		if v.i != 0 {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindDouble:
		sb.WriteString(formatDouble(v.f))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindTensor:
		sb.WriteString(v.t.String())
	case KindList, KindTuple:
		open, closing := "[", "]"
		if v.kind == KindTuple {
			open, closing = "(", ")"
		}
		sb.WriteString(open)
		for i, e := range v.seq {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.format(sb)
		}
		if v.kind == KindTuple && len(v.seq) == 1 {
			sb.WriteString(",")
		}
		sb.WriteString(closing)
	case KindMapping:
		sb.WriteString("{")
		for i := range v.m.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			v.m.keys[i].format(sb)
			sb.WriteString(": ")
			v.m.values[i].format(sb)
		}
		sb.WriteString("}")
	case KindOpaque:
		fmt.Fprintf(sb, "<opaque %s>", v.o.typeName)
	}
}

func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".en") {
		s += ".0"
	}
	return s
}

// keyOf returns a canonical identity string used for mapping key
// uniqueness. Distinct kinds never collide.
func keyOf(v Value) string {
	var sb strings.Builder
	writeKey(&sb, v)
	return sb.String()
}

func writeKey(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindNone:
		sb.WriteByte('n')
	case KindBool:
		sb.WriteByte('b')
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindInt:
		sb.WriteByte('i')
		sb.WriteString(strconv.FormatInt(v.i, 10))
		sb.WriteByte(';')
	case KindDouble:
		sb.WriteByte('d')
		sb.WriteString(strconv.FormatUint(math.Float64bits(v.f), 16))
		sb.WriteByte(';')
	case KindString:
		sb.WriteByte('s')
		sb.WriteString(strconv.Itoa(len(v.s)))
		sb.WriteByte(':')
		sb.WriteString(v.s)
	case KindTensor:
		fmt.Fprintf(sb, "T%s%v:%x;", v.t.dtype, v.t.shape, v.t.data)
	case KindList, KindTuple:
		if v.kind == KindList {
			sb.WriteByte('[')
		} else {
			sb.WriteByte('(')
		}
		for _, e := range v.seq {
			writeKey(sb, e)
		}
		sb.WriteByte(')')
	case KindMapping:
		parts := make([]string, len(v.m.keys))
		for i := range v.m.keys {
			parts[i] = keyOf(v.m.keys[i]) + "=" + keyOf(v.m.values[i])
		}
		sort.Strings(parts)
		sb.WriteByte('{')
		for _, p := range parts {
			sb.WriteString(strconv.Itoa(len(p)))
			sb.WriteByte(':')
			sb.WriteString(p)
		}
		sb.WriteByte('}')
	case KindOpaque:
		fmt.Fprintf(sb, "o%d:%s:%s;", v.o.interp, v.o.typeName, v.o.identity())
	}
}

// identity keys an opaque the way same compares it: by the address of a
// pointer-shaped object, by value for other comparable objects, and by the
// box itself when the object cannot be compared.
func (o *Opaque) identity() string {
	if o.obj == nil {
		return "nil"
	}
	rv := reflect.ValueOf(o.obj)
	switch {
	case rv.Kind() == reflect.Pointer || rv.Kind() == reflect.UnsafePointer || rv.Kind() == reflect.Chan:
		return fmt.Sprintf("%T@%x", o.obj, rv.Pointer())
	case rv.Type().Comparable():
		return fmt.Sprintf("%T=%#v", o.obj, o.obj)
	}
	return fmt.Sprintf("box@%p", o)
}
