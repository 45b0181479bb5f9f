package ivbridge

import (
	"fmt"

	"go.starlark.net/starlark"
)

// predeclared names visible to every interpreter module.
var predeclared = starlark.StringDict{
	"tensor": starlark.NewBuiltin("tensor", tensorBuiltin),
}

// TensorObject is the interpreter-side representation of a Tensor. It is a
// read-only view; the backing storage belongs to the host tensor.
//
// Scripts see it as an indexable sequence over the flattened elements with
// shape, dtype, numel and tolist attributes.
type TensorObject struct {
	t *Tensor
}

var (
	_ starlark.Value     = (*TensorObject)(nil)
	_ starlark.HasAttrs  = (*TensorObject)(nil)
	_ starlark.Indexable = (*TensorObject)(nil)
)

// NewTensorObject wraps t without copying.
func NewTensorObject(t *Tensor) *TensorObject { return &TensorObject{t: t} }

// Tensor returns the wrapped host tensor.
func (o *TensorObject) Tensor() *Tensor { return o.t }

func (o *TensorObject) String() string        { return o.t.String() }
func (o *TensorObject) Type() string          { return "tensor" }
func (o *TensorObject) Freeze()               {}
func (o *TensorObject) Truth() starlark.Bool  { return o.t.Numel() > 0 }
func (o *TensorObject) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: tensor") }
func (o *TensorObject) Len() int              { return o.t.Numel() }

func (o *TensorObject) Index(i int) starlark.Value {
	switch {
	case o.t.dtype == DTypeBool:
		return starlark.Bool(o.t.data[i] != 0)
	case o.t.dtype.IsFloat():
		return starlark.Float(o.t.Float64At(i))
	}
	return starlark.MakeInt64(o.t.Int64At(i))
}

func (o *TensorObject) Attr(name string) (starlark.Value, error) {
	switch name {
	case "shape":
		dims := make(starlark.Tuple, len(o.t.shape))
		for i, d := range o.t.shape {
			dims[i] = starlark.MakeInt(d)
		}
		return dims, nil
	case "dtype":
		return starlark.String(o.t.dtype.String()), nil
	case "numel":
		return starlark.MakeInt(o.t.Numel()), nil
	case "tolist":
		return starlark.NewBuiltin("tolist", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			elems := make([]starlark.Value, o.Len())
			for i := range elems {
				elems[i] = o.Index(i)
			}
			return starlark.NewList(elems), nil
		}), nil
	}
	return nil, nil
}

func (o *TensorObject) AttrNames() []string {
	return []string{"dtype", "numel", "shape", "tolist"}
}

// tensorBuiltin implements tensor(values, shape=None, dtype="float64").
// values is a flat iterable of numbers; shape defaults to [len(values)].
func tensorBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		values    starlark.Value
		shapeArg  starlark.Value = starlark.None
		dtypeName                = DTypeFloat64.String()
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &values, "shape?", &shapeArg, "dtype?", &dtypeName); err != nil {
		return nil, err
	}
	dtype, err := ParseDType(dtypeName)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	iter := starlark.Iterate(values)
	if iter == nil {
		return nil, fmt.Errorf("%s: values must be iterable, got %s", b.Name(), values.Type())
	}
	defer iter.Done()

	var elems []starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		elems = append(elems, x)
	}

	shape := []int{len(elems)}
	if shapeArg != starlark.None {
		if shape, err = unpackShape(shapeArg); err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
	}

	data := make([]byte, len(elems)*dtype.ItemSize())
	for i, e := range elems {
		if err := packElement(data, i, dtype, e); err != nil {
			return nil, fmt.Errorf("%s: element %d: %v", b.Name(), i, err)
		}
	}
	t, err := NewTensor(dtype, shape, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	return NewTensorObject(t), nil
}

func unpackShape(v starlark.Value) ([]int, error) {
	seq, ok := v.(starlark.Indexable)
	if !ok {
		return nil, fmt.Errorf("shape must be a list or tuple, got %s", v.Type())
	}
	shape := make([]int, seq.Len())
	for i := range shape {
		d, err := starlark.AsInt32(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("shape[%d]: %v", i, err)
		}
		shape[i] = d
	}
	return shape, nil
}

func packElement(data []byte, i int, dtype DType, e starlark.Value) error {
	var f float64
	var n int64
	switch x := e.(type) {
	case starlark.Bool:
		if x {
			n, f = 1, 1
		}
	case starlark.Int:
		var ok bool
		if n, ok = x.Int64(); !ok {
			return fmt.Errorf("integer %s out of range", x)
		}
		f = float64(n)
	case starlark.Float:
		f = float64(x)
		n = int64(f)
	default:
		return fmt.Errorf("want number, got %s", e.Type())
	}

	size := dtype.ItemSize()
	putElement(data[i*size:(i+1)*size], dtype, n, f)
	return nil
}
