package ivbridge

import (
	"errors"
	"reflect"

	"go.starlark.net/starlark"
)

// maxNesting bounds container depth in both conversion directions.
const maxNesting = 512

// objectConverter builds interpreter objects from Values and inspects
// interpreter objects back into Values. The built-in backends share it and
// differ in what surrounds it.
type objectConverter struct {
	backend BackendID
	unknown ShapePolicy
}

// toObject builds the object tree for v. Nothing is pinned; the caller pins
// the root once the whole tree exists.
func (c *objectConverter) toObject(ctx *Context, v Value, depth int) (starlark.Value, error) {
	if depth > maxNesting {
		return nil, interopErrorf(UnsupportedVariant, c.backend, "nesting deeper than %d", maxNesting)
	}
	switch v.kind {
	case KindNone:
		return starlark.None, nil
	case KindBool:
		return starlark.Bool(v.i != 0), nil
	case KindInt:
		return starlark.MakeInt64(v.i), nil
	case KindDouble:
		return starlark.Float(v.f), nil
	case KindString:
		return starlark.String(v.s), nil
	case KindTensor:
		return NewTensorObject(v.t), nil
	case KindList, KindTuple:
		elems := make([]starlark.Value, len(v.seq))
		for i, e := range v.seq {
			obj, err := c.toObject(ctx, e, depth+1)
			if err != nil {
				return nil, err
			}
			elems[i] = obj
		}
		if v.kind == KindTuple {
			return starlark.Tuple(elems), nil
		}
		return starlark.NewList(elems), nil
	case KindMapping:
		d := starlark.NewDict(len(v.m.keys))
		for i := range v.m.keys {
			k, err := c.toObject(ctx, v.m.keys[i], depth+1)
			if err != nil {
				return nil, err
			}
			val, err := c.toObject(ctx, v.m.values[i], depth+1)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(k, val); err != nil {
				return nil, wrapInterop(UnsupportedVariant, c.backend, err, "mapping key %s", v.m.keys[i])
			}
			// 1 and 1.0 are distinct keys on the host but equal in the
			// interpreter.
			if d.Len() != i+1 {
				return nil, interopErrorf(UnsupportedVariant, c.backend, "mapping key %s collides with an earlier key", v.m.keys[i])
			}
		}
		return d, nil
	case KindOpaque:
		if v.o.interp != ctx.interp.id {
			return nil, interopErrorf(InvalidHandleContext, c.backend, "opaque %s belongs to interpreter %d, not %s",
				v.o.typeName, v.o.interp, ctx.interp.name)
		}
		obj, ok := v.o.obj.(starlark.Value)
		if !ok {
			return nil, interopErrorf(UnsupportedVariant, c.backend, "opaque %s is not an interpreter object", v.o.typeName)
		}
		return obj, nil
	}
	return nil, interopErrorf(UnsupportedVariant, c.backend, "value kind %s", v.kind)
}

// inspection tracks the containers on the current path to detect cycles.
type inspection struct {
	*objectConverter
	ctx      *Context
	visiting map[uintptr]struct{}
}

func (c *objectConverter) fromObject(ctx *Context, obj starlark.Value) (Value, error) {
	in := &inspection{objectConverter: c, ctx: ctx, visiting: make(map[uintptr]struct{})}
	return in.value(obj, 0)
}

func (in *inspection) value(obj starlark.Value, depth int) (Value, error) {
	if depth > maxNesting {
		return Value{}, interopErrorf(ForeignIntrospectionFailure, in.backend, "nesting deeper than %d", maxNesting)
	}
	switch x := obj.(type) {
	case starlark.NoneType:
		return None(), nil
	case starlark.Bool:
		return Bool(bool(x)), nil
	case starlark.Int:
		i, ok := x.Int64()
		if !ok {
			return Value{}, interopErrorf(UnsupportedVariant, in.backend, "integer %s does not fit in 64 bits", x)
		}
		return Int(i), nil
	case starlark.Float:
		return Double(float64(x)), nil
	case starlark.String:
		return String(string(x)), nil
	case starlark.Bytes:
		return String(string(x)), nil
	case *TensorObject:
		return TensorValue(x.t), nil
	case starlark.Tuple:
		elems, err := in.elements(x, depth)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindTuple, seq: elems}, nil
	case starlark.IterableMapping:
		return in.mapping(x, depth)
	case starlark.Indexable:
		elems, err := in.elements(x, depth)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindList, seq: elems}, nil
	case starlark.Sequence:
		return in.iterated(x, depth)
	}
	if in.unknown == BoxUnknown {
		return newOpaque(in.ctx.interp.id, obj.Type(), obj), nil
	}
	return Value{}, interopErrorf(UnsupportedVariant, in.backend, "no conversion for %s", obj.Type())
}

// enter marks obj as being on the current path.
func (in *inspection) enter(obj starlark.Value) (leave func(), err error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer {
		return func() {}, nil
	}
	p := rv.Pointer()
	if _, ok := in.visiting[p]; ok {
		return nil, interopErrorf(ForeignIntrospectionFailure, in.backend, "cyclic %s", obj.Type())
	}
	in.visiting[p] = struct{}{}
	return func() { delete(in.visiting, p) }, nil
}

func (in *inspection) elements(seq starlark.Indexable, depth int) ([]Value, error) {
	leave, err := in.enter(seq)
	if err != nil {
		return nil, err
	}
	defer leave()
	n := seq.Len()
	if n < 0 {
		return nil, interopErrorf(ForeignIntrospectionFailure, in.backend, "%s reports negative length", seq.Type())
	}
	elems := make([]Value, n)
	for i := range elems {
		if elems[i], err = in.value(seq.Index(i), depth+1); err != nil {
			return nil, err
		}
	}
	return elems, nil
}

func (in *inspection) iterated(seq starlark.Sequence, depth int) (Value, error) {
	leave, err := in.enter(seq)
	if err != nil {
		return Value{}, err
	}
	defer leave()
	iter := seq.Iterate()
	defer iter.Done()
	elems := make([]Value, 0, seq.Len())
	var x starlark.Value
	for iter.Next(&x) {
		e, err := in.value(x, depth+1)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, e)
	}
	return Value{kind: KindList, seq: elems}, nil
}

func (in *inspection) mapping(m starlark.IterableMapping, depth int) (Value, error) {
	leave, err := in.enter(m)
	if err != nil {
		return Value{}, err
	}
	defer leave()

	var keys []starlark.Value
	iter := m.Iterate()
	var k starlark.Value
	for iter.Next(&k) {
		keys = append(keys, k)
	}
	iter.Done()

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		obj, found, err := m.Get(k)
		if err != nil {
			return Value{}, wrapInterop(ForeignIntrospectionFailure, in.backend, translateScriptError(err), "%s item %s", m.Type(), k)
		}
		if !found {
			return Value{}, interopErrorf(ForeignIntrospectionFailure, in.backend, "%s lists key %s but has no item for it", m.Type(), k)
		}
		key, err := in.value(k, depth+1)
		if err != nil {
			return Value{}, err
		}
		val, err := in.value(obj, depth+1)
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, Entry{Key: key, Value: val})
	}
	return Mapping(entries...), nil
}

// pinRoot pins a fully built object and stamps the backend on failures.
func (c *objectConverter) pinRoot(ctx *Context, obj starlark.Value) (*Handle, error) {
	h, err := ctx.Pin(obj)
	if err != nil {
		return nil, withBackend(err, c.backend)
	}
	return h, nil
}

// asInterop converts err into an InteropError of kind when it is not one.
func asInterop(err error, kind ErrorKind, backend BackendID, format string, args ...any) error {
	var ie *InteropError
	if errors.As(err, &ie) {
		return withBackend(err, backend)
	}
	return wrapInterop(kind, backend, err, format, args...)
}
