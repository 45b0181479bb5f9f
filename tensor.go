package ivbridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// DType is the element type of a Tensor.
type DType uint8

const (
	DTypeBool    DType = iota + 1 // bool
	DTypeUint8                    // uint8
	DTypeInt8                     // int8
	DTypeInt16                    // int16
	DTypeInt32                    // int32
	DTypeInt64                    // int64
	DTypeFloat32                  // float32
	DTypeFloat64                  // float64
)

// ItemSize returns the size in bytes of one element, or 0 for an invalid dtype.
func (d DType) ItemSize() int {
	switch d {
	case DTypeBool, DTypeUint8, DTypeInt8:
		return 1
	case DTypeInt16:
		return 2
	case DTypeInt32, DTypeFloat32:
		return 4
	case DTypeInt64, DTypeFloat64:
		return 8
	}
	return 0
}

func (d DType) Valid() bool { return d.ItemSize() != 0 }

// IsFloat reports whether elements are floating point.
func (d DType) IsFloat() bool { return d == DTypeFloat32 || d == DTypeFloat64 }

// ParseDType maps a dtype name such as "float32" to its DType.
func ParseDType(name string) (DType, error) {
	for d := DTypeBool; d <= DTypeFloat64; d++ {
		if d.String() == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown dtype %q", name)
}

// Tensor is a dense, immutable n-dimensional array with little-endian
// element storage.
//
// Tensors are shared by reference between a Value and zero-copy interpreter
// wrappers; nothing in this package writes to the storage after
// construction. A tensor over SharedMemory observes writes made through
// the region's typed slices.
type Tensor struct {
	dtype DType
	shape []int
	data  []byte
}

// NewTensor validates and wraps data. The tensor takes ownership of data;
// the caller must not modify it afterwards.
func NewTensor(dtype DType, shape []int, data []byte) (*Tensor, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid dtype %v", dtype)
	}
	n, err := numelOf(shape)
	if err != nil {
		return nil, err
	}
	if want := n * dtype.ItemSize(); len(data) != want {
		return nil, fmt.Errorf("tensor data is %d bytes, shape %v of %s needs %d", len(data), shape, dtype, want)
	}
	return &Tensor{dtype: dtype, shape: slices.Clone(shape), data: data}, nil
}

// TensorFromFloat64s packs vals into a float64 tensor of the given shape.
func TensorFromFloat64s(shape []int, vals []float64) (*Tensor, error) {
	data := make([]byte, 8*len(vals))
	for i, f := range vals {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(f))
	}
	return NewTensor(DTypeFloat64, shape, data)
}

// TensorFromFloat32s packs vals into a float32 tensor of the given shape.
func TensorFromFloat32s(shape []int, vals []float32) (*Tensor, error) {
	data := make([]byte, 4*len(vals))
	for i, f := range vals {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(f))
	}
	return NewTensor(DTypeFloat32, shape, data)
}

// TensorFromInt64s packs vals into an int64 tensor of the given shape.
func TensorFromInt64s(shape []int, vals []int64) (*Tensor, error) {
	data := make([]byte, 8*len(vals))
	for i, n := range vals {
		binary.LittleEndian.PutUint64(data[8*i:], uint64(n))
	}
	return NewTensor(DTypeInt64, shape, data)
}

func numelOf(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		if d != 0 && n > math.MaxInt32/d {
			return 0, fmt.Errorf("shape %v is too large", shape)
		}
		n *= d
	}
	return n, nil
}

func (t *Tensor) DType() DType { return t.dtype }

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

func (t *Tensor) Rank() int { return len(t.shape) }

func (t *Tensor) Numel() int { return len(t.data) / t.dtype.ItemSize() }

// Bytes returns the underlying storage. It must be treated as read-only.
func (t *Tensor) Bytes() []byte { return t.data }

// Float64At returns flat element i converted to float64.
func (t *Tensor) Float64At(i int) float64 {
	switch t.dtype {
	case DTypeFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(t.data[4*i:])))
	case DTypeFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(t.data[8*i:]))
	}
	return float64(t.Int64At(i))
}

// Int64At returns flat element i converted to int64. Floats truncate.
func (t *Tensor) Int64At(i int) int64 {
	switch t.dtype {
	case DTypeBool, DTypeUint8:
		return int64(t.data[i])
	case DTypeInt8:
		return int64(int8(t.data[i]))
	case DTypeInt16:
		return int64(int16(binary.LittleEndian.Uint16(t.data[2*i:])))
	case DTypeInt32:
		return int64(int32(binary.LittleEndian.Uint32(t.data[4*i:])))
	case DTypeInt64:
		return int64(binary.LittleEndian.Uint64(t.data[8*i:]))
	}
	return int64(t.Float64At(i))
}

// putElement stores one element into dst, which is exactly one item long.
// Integer dtypes take n and float dtypes take f; bool is true when f != 0.
func putElement(dst []byte, dtype DType, n int64, f float64) {
	switch dtype {
	case DTypeBool:
		dst[0] = 0
		if f != 0 {
			dst[0] = 1
		}
	case DTypeUint8, DTypeInt8:
		dst[0] = byte(n)
	case DTypeInt16:
		binary.LittleEndian.PutUint16(dst, uint16(n))
	case DTypeInt32:
		binary.LittleEndian.PutUint32(dst, uint32(n))
	case DTypeInt64:
		binary.LittleEndian.PutUint64(dst, uint64(n))
	case DTypeFloat32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f)))
	case DTypeFloat64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
	}
}

// Equal reports whether both tensors have the same dtype, shape and bytes.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	return t.dtype == o.dtype && slices.Equal(t.shape, o.shape) && bytes.Equal(t.data, o.data)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("tensor(dtype=%s, shape=%v)", t.dtype, t.shape)
}
