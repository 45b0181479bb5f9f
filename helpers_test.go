package ivbridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func builtinBackends() []*Backend {
	return []*Backend{LinkedBackend(), SerializedBackend()}
}

func newTestInterpreter(t *testing.T, opts InterpreterOptions) *Interpreter {
	t.Helper()
	in := NewInterpreter(opts)
	t.Cleanup(func() { in.Close() })
	return in
}

// enter holds in's execution context until the test ends or the returned
// context is exited.
func enter(t *testing.T, in *Interpreter) *Context {
	t.Helper()
	ctx, err := in.Enter()
	require.NoError(t, err)
	t.Cleanup(ctx.Exit)
	return ctx
}

// mustTensor is used as mustTensor(t)(NewTensor(...)).
func mustTensor(t *testing.T) func(*Tensor, error) *Tensor {
	return func(tensor *Tensor, err error) *Tensor {
		t.Helper()
		require.NoError(t, err)
		return tensor
	}
}
