// Package ivbridge exchanges typed numerical values between a Go host and
// embedded interpreter instances.
//
// The host side speaks Value, an immutable tagged union of None, Bool, Int,
// Double, String, Tensor, List, Tuple, Mapping and Opaque. The interpreter
// side is a Starlark heap; host code refers to interpreter objects through
// owning Handles. A conversion Backend turns one into the other, and a
// Registry binds exactly one backend per process.
//
// # Backends
//
// Two backends register themselves at init:
//
//   - linked builds interpreter objects directly. Tensors are wrapped
//     without copying, and objects with no native mapping come back as
//     Opaque values that can be passed back into their interpreter.
//
//   - serialized exchanges values as a self-describing msgpack stream, the
//     way a backend loaded from a separately built library has to. Tensors
//     are copied, and objects with no wire form are rejected with
//     ErrUnsupportedVariant.
//
// The backend selected by OpenSession when none is active is linked, or
// serialized when built with -tags ivbridge_serialized. Selection is final
// for the life of the registry:
//
//	b, err := ivbridge.SelectBackend(ivbridge.Linked)
//	b2, _ := ivbridge.SelectBackend(ivbridge.Linked)  // b2 == b
//	_, err = ivbridge.SelectBackend(ivbridge.Serialized) // ErrBackendAlreadySelected
//
// # Execution contexts and handles
//
// An Interpreter may only be touched by the goroutine holding its execution
// context. Enter blocks until the context is free; Exit releases it.
// Different interpreters run in parallel.
//
//	ctx, err := interp.Enter()
//	if err != nil {
//		return err
//	}
//	defer ctx.Exit()
//
//	h, err := backend.Converter.ToHandle(ctx, ivbridge.List(ivbridge.Int(1), ivbridge.String("a")))
//	if err != nil {
//		return err
//	}
//	defer h.Release()
//
// Every Handle must be released exactly once. Interpreter.LiveObjects
// reports how many objects are still pinned by handles.
//
// # Sessions
//
// A Session binds the active backend to one interpreter, rejects handles and
// contexts that belong to another interpreter, and offers helpers that
// release every handle they create:
//
//	s, err := ivbridge.OpenSession(nil, ivbridge.SessionOptions{})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	if err := s.Exec("lib.star", "def scale(t, k): return [x * k for x in t.tolist()]"); err != nil {
//		return err
//	}
//	out, err := s.Call("scale", ivbridge.TensorValue(t), ivbridge.Double(2))
//
// # Errors
//
// Conversion failures are *InteropError values naming the active backend.
// Match their class with errors.Is against ErrUnsupportedVariant,
// ErrForeignAllocation, ErrInvalidHandleContext and ErrForeignIntrospection.
// Errors raised by interpreter code are *ScriptError values.
//
// # Shared memory
//
// SharedMemory maps a region outside the Go heap. Tensors created with
// SharedMemory.Tensor share that region with the interpreter under the
// linked backend:
//
//	shm, _ := ivbridge.CreateSharedMemory(4096)
//	defer shm.Close()
//	copy(shm.GetFloat64Slice(0), samples)
//	t, _ := shm.Tensor(ivbridge.DTypeFloat64, []int{len(samples)}, 0)
//
// # Wire and file formats
//
// Value implements msgpack custom encoding (tuples and tensors are
// extension types 2 and 1) and YAML marshaling (with !tuple and !tensor
// tags). FrameWriter and FrameReader carry Values over byte streams as
// length-prefixed msgpack frames.
package ivbridge
