package ivbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestNewTensorValidates(t *testing.T) {
	_, err := NewTensor(DTypeFloat64, []int{2, 2}, make([]byte, 24))
	assert.Error(t, err)

	_, err = NewTensor(DTypeInt8, []int{-1}, nil)
	assert.Error(t, err)

	_, err = NewTensor(DType(0), []int{1}, make([]byte, 1))
	assert.Error(t, err)

	tensor, err := NewTensor(DTypeInt16, []int{2, 3}, make([]byte, 12))
	require.NoError(t, err)
	assert.Equal(t, 6, tensor.Numel())
	assert.Equal(t, 2, tensor.Rank())
	assert.Equal(t, []int{2, 3}, tensor.Shape())
}

func TestTensorShapeIsCopied(t *testing.T) {
	shape := []int{3}
	tensor := mustTensor(t)(TensorFromInt64s(shape, []int64{1, 2, 3}))
	shape[0] = 99
	got := tensor.Shape()
	got[0] = 42
	assert.Equal(t, []int{3}, tensor.Shape())
}

func TestTensorElements(t *testing.T) {
	f32 := mustTensor(t)(TensorFromFloat32s([]int{2}, []float32{1.5, -2}))
	assert.Equal(t, 1.5, f32.Float64At(0))
	assert.Equal(t, int64(-2), f32.Int64At(1))

	i64 := mustTensor(t)(TensorFromInt64s([]int{2}, []int64{-7, 1 << 40}))
	assert.Equal(t, int64(-7), i64.Int64At(0))
	assert.Equal(t, float64(1<<40), i64.Float64At(1))

	i8, err := NewTensor(DTypeInt8, []int{1}, []byte{0xff})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), i8.Int64At(0))
}

func TestParseDType(t *testing.T) {
	for d := DTypeBool; d <= DTypeFloat64; d++ {
		got, err := ParseDType(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDType("complex128")
	assert.Error(t, err)
}

func TestTensorBuiltin(t *testing.T) {
	in := newTestInterpreter(t, InterpreterOptions{})
	ctx := enter(t, in)

	require.NoError(t, ctx.Exec("t.star", `
t = tensor([1, 2, 3, 4, 5, 6], shape = [2, 3], dtype = "int32")
shape = t.shape
dtype = t.dtype
def _sum(xs):
    s = 0
    for x in xs:
        s += x
    return s

total = _sum(t.tolist())
n = len(t)
`))
	globals := in.globals
	assert.Equal(t, "(2, 3)", globals["shape"].String())
	assert.Equal(t, starlark.String("int32"), globals["dtype"])
	assert.Equal(t, "21", globals["total"].String())
	assert.Equal(t, "6", globals["n"].String())

	obj, ok := globals["t"].(*TensorObject)
	require.True(t, ok)
	assert.Equal(t, DTypeInt32, obj.Tensor().DType())
	assert.Equal(t, int64(6), obj.Tensor().Int64At(5))
}

func TestTensorBuiltinErrors(t *testing.T) {
	in := newTestInterpreter(t, InterpreterOptions{})
	ctx := enter(t, in)

	tests := map[string]string{
		"bad dtype":      `tensor([1], dtype = "complex")`,
		"shape mismatch": `tensor([1, 2, 3], shape = [2, 2])`,
		"non number":     `tensor(["a"])`,
		"not iterable":   `tensor(1)`,
	}
	for name, expr := range tests {
		t.Run(name, func(t *testing.T) {
			h, err := ctx.Eval(expr)
			require.Error(t, err)
			assert.Nil(t, h)
			var se *ScriptError
			assert.ErrorAs(t, err, &se)
		})
	}
	assert.Equal(t, 0, in.LiveObjects())
}
