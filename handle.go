package ivbridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.starlark.net/starlark"
)

// objectHeap pins interpreter objects on behalf of host handles. Objects
// reachable only from the interpreter stay under its own memory management;
// a pinned object stays live until every handle to it is released.
type objectHeap struct {
	mu    sync.Mutex
	slots map[uint64]*slot
	next  uint64
	max   int
}

type slot struct {
	id   uint64
	obj  starlark.Value
	refs int
}

func newObjectHeap(max int) *objectHeap {
	return &objectHeap{slots: make(map[uint64]*slot), max: max}
}

func (h *objectHeap) pin(obj starlark.Value) (*slot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.slots == nil {
		return nil, interopErrorf(InvalidHandleContext, "", "interpreter is closed")
	}
	if h.max > 0 && len(h.slots) >= h.max {
		return nil, interopErrorf(ForeignAllocationFailure, "", "object limit of %d live handles reached", h.max)
	}
	h.next++
	s := &slot{id: h.next, obj: obj, refs: 1}
	h.slots[s.id] = s
	return s, nil
}

func (h *objectHeap) retain(s *slot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.slots[s.id] != s {
		return interopErrorf(InvalidHandleContext, "", "object %d is no longer live", s.id)
	}
	s.refs++
	return nil
}

func (h *objectHeap) release(s *slot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.slots[s.id] != s {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(h.slots, s.id)
	}
}

func (h *objectHeap) isLive(s *slot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots[s.id] == s
}

func (h *objectHeap) live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.slots)
}

// drain drops every pin and returns how many objects were still live.
func (h *objectHeap) drain() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.slots)
	h.slots = nil
	return n
}

// Handle is an owning reference to an object in one interpreter's heap.
//
// Every Handle returned by this package must be released exactly once with
// Release, typically with defer right after the error check. Release is
// idempotent and may run on any goroutine. A Handle is only meaningful to
// the interpreter that created it.
type Handle struct {
	interp   *Interpreter
	slot     *slot
	released atomic.Bool
}

// Interpreter returns the interpreter that owns the object.
func (h *Handle) Interpreter() *Interpreter { return h.interp }

// ID returns the heap slot id, unique within the owning interpreter.
func (h *Handle) ID() uint64 { return h.slot.id }

// Released reports whether Release has been called on this handle.
func (h *Handle) Released() bool { return h.released.Load() }

// Type returns the interpreter's type name for the referenced object.
func (h *Handle) Type() string { return h.slot.obj.Type() }

// Clone returns a second owning reference to the same object. Both handles
// must be released.
func (h *Handle) Clone() (*Handle, error) {
	if h.released.Load() {
		return nil, interopErrorf(InvalidHandleContext, "", "clone of released handle %d", h.slot.id)
	}
	if err := h.interp.heap.retain(h.slot); err != nil {
		return nil, err
	}
	return &Handle{interp: h.interp, slot: h.slot}, nil
}

// Release drops this reference. The object is unpinned when its last
// handle is released. Calls after the first, and calls after the owning
// interpreter was closed, do nothing.
func (h *Handle) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	h.interp.heap.release(h.slot)
}

func (h *Handle) String() string {
	return fmt.Sprintf("<handle %d:%d %s>", h.interp.id, h.slot.id, h.slot.obj.Type())
}
