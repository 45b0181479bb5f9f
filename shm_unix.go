//go:build unix

package ivbridge

import (
	"golang.org/x/sys/unix"
)

// shmi is an anonymous shared mapping.
type shmi struct {
	data []byte
	size int
}

func create(size int) (*shmi, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &shmi{data: data, size: size}, nil
}

func (o *shmi) close() error {
	return unix.Munmap(o.data)
}
