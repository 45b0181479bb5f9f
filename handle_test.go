package ivbridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestHandleCloneAndRelease(t *testing.T) {
	in := newTestInterpreter(t, InterpreterOptions{})
	ctx := enter(t, in)

	h, err := ctx.Eval("[1, 2, 3]")
	require.NoError(t, err)
	assert.Equal(t, 1, in.LiveObjects())
	assert.Equal(t, "list", h.Type())

	c, err := h.Clone()
	require.NoError(t, err)
	assert.Equal(t, h.ID(), c.ID())
	assert.Equal(t, 1, in.LiveObjects())

	h.Release()
	h.Release()
	assert.True(t, h.Released())
	assert.Equal(t, 1, in.LiveObjects(), "clone keeps the object pinned")

	obj, err := ctx.Deref(c)
	require.NoError(t, err)
	assert.Equal(t, "[1, 2, 3]", obj.String())

	_, err = ctx.Deref(h)
	assert.ErrorIs(t, err, ErrInvalidHandleContext)
	_, err = h.Clone()
	assert.ErrorIs(t, err, ErrInvalidHandleContext)

	c.Release()
	assert.Equal(t, 0, in.LiveObjects())

	var nilHandle *Handle
	assert.NotPanics(t, nilHandle.Release)
}

func TestHandleReleaseAfterClose(t *testing.T) {
	in := NewInterpreter(InterpreterOptions{})
	ctx, err := in.Enter()
	require.NoError(t, err)
	h, err := ctx.Eval("{'a': 1}")
	require.NoError(t, err)
	ctx.Exit()

	require.NoError(t, in.Close())
	assert.True(t, in.Closed())
	assert.Equal(t, 0, in.LiveObjects())
	assert.NotPanics(t, h.Release)

	_, err = in.Enter()
	assert.ErrorIs(t, err, ErrInvalidHandleContext)
	assert.NoError(t, in.Close())
}

func TestMaxObjects(t *testing.T) {
	in := newTestInterpreter(t, InterpreterOptions{MaxObjects: 2})
	ctx := enter(t, in)

	a, err := ctx.Pin(starlark.MakeInt(1))
	require.NoError(t, err)
	defer a.Release()
	b, err := ctx.Pin(starlark.MakeInt(2))
	require.NoError(t, err)

	_, err = ctx.Pin(starlark.MakeInt(3))
	assert.ErrorIs(t, err, ErrForeignAllocation)
	assert.Equal(t, 2, in.LiveObjects())

	b.Release()
	c, err := ctx.Pin(starlark.MakeInt(3))
	require.NoError(t, err)
	c.Release()
}

func TestContextExit(t *testing.T) {
	in := newTestInterpreter(t, InterpreterOptions{})
	ctx, err := in.Enter()
	require.NoError(t, err)
	assert.True(t, ctx.Active())
	assert.Same(t, in, ctx.Interpreter())

	ctx.Exit()
	ctx.Exit()
	assert.False(t, ctx.Active())

	_, err = ctx.Eval("1")
	assert.ErrorIs(t, err, ErrInvalidHandleContext)
	_, err = ctx.Pin(starlark.None)
	assert.ErrorIs(t, err, ErrInvalidHandleContext)
}

func TestContextIsExclusive(t *testing.T) {
	in := newTestInterpreter(t, InterpreterOptions{})
	ctx, err := in.Enter()
	require.NoError(t, err)

	entered := make(chan struct{})
	go func() {
		second, err := in.Enter()
		if err == nil {
			second.Exit()
		}
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatal("second Enter returned while the context was held")
	case <-time.After(50 * time.Millisecond):
	}
	ctx.Exit()
	<-entered
}

func TestDerefRejectsForeignHandle(t *testing.T) {
	a := newTestInterpreter(t, InterpreterOptions{Name: "a"})
	b := newTestInterpreter(t, InterpreterOptions{Name: "b"})

	ctxA := enter(t, a)
	h, err := ctxA.Eval("1")
	require.NoError(t, err)
	defer h.Release()
	ctxA.Exit()

	ctxB := enter(t, b)
	_, err = ctxB.Deref(h)
	assert.ErrorIs(t, err, ErrInvalidHandleContext)
	assert.ErrorContains(t, err, "used in context of b")
	_, err = ctxB.Call(h)
	assert.ErrorIs(t, err, ErrInvalidHandleContext)
	assert.Same(t, a, h.Interpreter())
}

func TestConcurrentRelease(t *testing.T) {
	in := newTestInterpreter(t, InterpreterOptions{})
	ctx := enter(t, in)

	h, err := ctx.Eval("'shared'")
	require.NoError(t, err)
	clones := make([]*Handle, 64)
	for i := range clones {
		clones[i], err = h.Clone()
		require.NoError(t, err)
	}
	h.Release()
	assert.Equal(t, 1, in.LiveObjects())

	var wg sync.WaitGroup
	for _, c := range clones {
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Release()
			}()
		}
	}
	wg.Wait()
	assert.Equal(t, 0, in.LiveObjects())
}

func TestExecGlobalsAndCall(t *testing.T) {
	in := newTestInterpreter(t, InterpreterOptions{Name: "calc"})
	ctx := enter(t, in)

	require.NoError(t, ctx.Exec("lib.star", "def add(a, b):\n    return a + b\n"))

	fn, err := ctx.Global("add")
	require.NoError(t, err)
	defer fn.Release()
	x, err := ctx.Pin(starlark.MakeInt(2))
	require.NoError(t, err)
	defer x.Release()

	res, err := ctx.Call(fn, x, x)
	require.NoError(t, err)
	defer res.Release()
	obj, err := ctx.Deref(res)
	require.NoError(t, err)
	assert.Equal(t, "4", obj.String())

	require.NoError(t, ctx.SetGlobal("four", res))
	h, err := ctx.Eval("four * 2")
	require.NoError(t, err)
	defer h.Release()
	obj, err = ctx.Deref(h)
	require.NoError(t, err)
	assert.Equal(t, "8", obj.String())

	_, err = ctx.Global("missing")
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "NameError", se.Exception)

	_, err = ctx.Call(x)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "TypeError", se.Exception)
}

func TestPrintGoesToCallback(t *testing.T) {
	var lines []string
	in := newTestInterpreter(t, InterpreterOptions{Print: func(msg string) { lines = append(lines, msg) }})
	ctx := enter(t, in)
	require.NoError(t, ctx.Exec("p.star", `print("hello", 1)`))
	assert.Equal(t, []string{"hello 1"}, lines)
}
