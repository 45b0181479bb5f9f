package ivbridge

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

// TestBufferPoolConcurrent tests that BufferPool is safe for concurrent access.
func TestBufferPoolConcurrent(t *testing.T) {
	pool := NewBufferPool(1024, 10)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := pool.Get()
				assert.Len(t, buf, 1024)
				buf[0] = byte(j)
				pool.Put(buf)
			}
		}()
	}
	wg.Wait()
}

func TestBufferPoolWrongSizeBuffer(t *testing.T) {
	pool := NewBufferPool(1024, 2)
	assert.Equal(t, 1024, pool.BufSize())

	buf1 := pool.Get()
	buf2 := pool.Get()
	pool.Put(buf1)
	pool.Put(buf2)
	pool.Put(make([]byte, 512))

	_ = pool.Get()
	_ = pool.Get()

	// The pool is empty, so this one is freshly allocated.
	buf3 := pool.Get()
	assert.Equal(t, 1024, cap(buf3))
}

// Interpreters share nothing, so sessions on different interpreters run in
// parallel while each serializes on its own context.
func TestParallelInterpreters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b *Backend) {
		sample := List(
			Int(7),
			Tuple(String("a"), Double(0.5)),
			TensorValue(mustTensor(t)(TensorFromFloat64s([]int{2}, []float64{1, 2}))),
		)

		var g errgroup.Group
		interps := make([]*Interpreter, 8)
		for i := range interps {
			interps[i] = newTestInterpreter(t, InterpreterOptions{Name: fmt.Sprintf("worker-%d", i)})
			s := NewSession(interps[i], b)
			g.Go(func() error {
				for n := 0; n < 50; n++ {
					if err := s.SetGlobal("v", sample); err != nil {
						return err
					}
					got, err := s.Global("v")
					if err != nil {
						return err
					}
					if !got.Equal(sample) {
						return fmt.Errorf("%s: iteration %d: got %s", s.Interpreter().Name(), n, got)
					}
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		for _, in := range interps {
			assert.Equal(t, 0, in.LiveObjects())
		}
	})
}

// Goroutines sharing one interpreter take turns on its context.
func TestSharedInterpreterSerializes(t *testing.T) {
	in := newTestInterpreter(t, InterpreterOptions{})
	s := NewSession(in, LinkedBackend())

	count := 0
	require.NoError(t, s.Do(func(ctx *Context) error {
		bindBuiltin(t, ctx, "bump", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			count++
			return starlark.MakeInt(count), nil
		})
		return nil
	}))

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 25; j++ {
				if _, err := s.Eval("bump()"); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	v, err := s.Eval("bump()")
	require.NoError(t, err)
	assert.True(t, Int(16*25+1).Equal(v), "got %s", v)
	assert.Equal(t, 0, in.LiveObjects())
}
