package ivbridge

import (
	"errors"
	"fmt"
	"io"
	"unsafe"
)

var ErrSharedMemoryClosed = errors.New("shared memory is closed")

// SharedMemory is a memory region allocated outside the Go heap. Tensors
// built over it with Tensor are wrapped by the linked backend without
// copying, so interpreter code and host code observe the same bytes.
//
// SharedMemory implements io.Reader, io.Writer, io.Seeker, io.ReaderAt and
// io.WriterAt. It is not safe for concurrent use of the position-based
// methods.
type SharedMemory struct {
	m   *shmi
	pos int64
}

// CreateSharedMemory maps a zeroed region of size bytes.
func CreateSharedMemory(size int) (*SharedMemory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("create shared memory: invalid size %d", size)
	}
	m, err := create(size)
	if err != nil {
		return nil, fmt.Errorf("create shared memory: %w", err)
	}
	return &SharedMemory{m: m}, nil
}

// Size returns the size of the region in bytes.
func (o *SharedMemory) Size() int {
	if o.m == nil {
		return 0
	}
	return o.m.size
}

// Close unmaps the region. Slices and tensors over it must not be used
// afterwards.
func (o *SharedMemory) Close() (err error) {
	if o.m != nil {
		err = o.m.close()
		if err == nil {
			o.m = nil
		}
	}
	return err
}

func (o *SharedMemory) Read(p []byte) (n int, err error) {
	n, err = o.ReadAt(p, o.pos)
	o.pos += int64(n)
	return n, err
}

func (o *SharedMemory) ReadAt(p []byte, off int64) (n int, err error) {
	if o.m == nil {
		return 0, ErrSharedMemoryClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= int64(o.m.size) {
		return 0, io.EOF
	}
	n = copy(p, o.m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (o *SharedMemory) Seek(offset int64, whence int) (int64, error) {
	if o.m == nil {
		return 0, ErrSharedMemoryClosed
	}
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += o.pos
	case io.SeekEnd:
		offset += int64(o.m.size)
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if offset < 0 || offset > int64(o.m.size) {
		return 0, fmt.Errorf("seek: invalid offset %d", offset)
	}
	o.pos = offset
	return offset, nil
}

func (o *SharedMemory) Write(p []byte) (n int, err error) {
	n, err = o.WriteAt(p, o.pos)
	o.pos += int64(n)
	return n, err
}

func (o *SharedMemory) WriteAt(p []byte, off int64) (n int, err error) {
	if o.m == nil {
		return 0, ErrSharedMemoryClosed
	}
	if off < 0 || off > int64(o.m.size) {
		return 0, fmt.Errorf("write at %d: offset out of range", off)
	}
	n = copy(o.m.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// GetTypedSlice returns a typed slice view of shared memory starting at
// offset, covering as many whole elements as fit. Writes through the slice
// are immediately visible to every other view of the region.
//
// The returned slice is only valid while the SharedMemory is open.
func GetTypedSlice[T any](shm *SharedMemory, offset int) []T {
	elementSize := int(unsafe.Sizeof(*new(T)))
	if shm.m == nil || offset < 0 || offset >= shm.m.size || elementSize == 0 {
		return nil
	}
	numElements := (shm.m.size - offset) / elementSize
	return unsafe.Slice((*T)(unsafe.Pointer(&shm.m.data[offset])), numElements)
}

func (o *SharedMemory) GetFloat32Slice(offset int) []float32 { return GetTypedSlice[float32](o, offset) }
func (o *SharedMemory) GetFloat64Slice(offset int) []float64 { return GetTypedSlice[float64](o, offset) }
func (o *SharedMemory) GetInt32Slice(offset int) []int32     { return GetTypedSlice[int32](o, offset) }
func (o *SharedMemory) GetInt64Slice(offset int) []int64     { return GetTypedSlice[int64](o, offset) }
func (o *SharedMemory) GetByteSlice(offset int) []byte       { return GetTypedSlice[byte](o, offset) }

// Tensor returns a tensor of the given dtype and shape whose storage is the
// region starting at offset. No bytes are copied.
func (o *SharedMemory) Tensor(dtype DType, shape []int, offset int) (*Tensor, error) {
	if o.m == nil {
		return nil, ErrSharedMemoryClosed
	}
	n, err := numelOf(shape)
	if err != nil {
		return nil, err
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("shared memory tensor: invalid dtype %d", dtype)
	}
	end := offset + n*dtype.ItemSize()
	if offset < 0 || end > o.m.size {
		return nil, fmt.Errorf("shared memory tensor: bytes [%d, %d) outside region of %d", offset, end, o.m.size)
	}
	return NewTensor(dtype, shape, o.m.data[offset:end:end])
}
