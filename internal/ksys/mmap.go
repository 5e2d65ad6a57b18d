package ksys

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AnonMap allocates size bytes via anonymous, private memory mapping — the
// scratch-buffer mechanism the bridge uses for its two 64 KiB regions,
// built directly on golang.org/x/sys/unix rather than a plain
// make([]byte).
func AnonMap(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return b, nil
}

// Unmap releases a region obtained from AnonMap.
func Unmap(b []byte) error {
	if b == nil {
		return nil
	}
	return unix.Munmap(b)
}
