package ivbridge

// BufferPool recycles fixed-size frame buffers between Receive calls.
// Get and Put may be called from any goroutine.
type BufferPool struct {
	free chan []byte
	size int
}

// NewBufferPool returns a pool holding up to count buffers of size bytes,
// all allocated up front.
func NewBufferPool(size, count int) *BufferPool {
	bp := &BufferPool{free: make(chan []byte, count), size: size}
	for range count {
		bp.free <- make([]byte, size)
	}
	return bp
}

// BufSize is the length of every buffer handed out by Get.
func (bp *BufferPool) BufSize() int { return bp.size }

// Get takes an idle buffer, or allocates one when none is idle.
func (bp *BufferPool) Get() []byte {
	select {
	case buf := <-bp.free:
		return buf
	default:
		return make([]byte, bp.size)
	}
}

// Put hands buf back for reuse. A buffer that did not come from Get, or
// that arrives while the pool is full, is left to the garbage collector.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	select {
	case bp.free <- buf[:bp.size]:
	default:
	}
}
