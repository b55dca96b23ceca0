package core

import "unsafe"

const (
	// CacheLineSize is a common cache line size, typically 64 bytes.
	// Adjust if targeting specific architectures with different cache line sizes.
	CacheLineSize = 64

	// ComplexSize is the size in bytes of one walker scalar (complex128).
	ComplexSize = 16
)

// AlignSize rounds size up to the specified alignment boundary
func AlignSize(size, align int) int {
	return (size + align - 1) &^ (align - 1)
}

// IsAligned checks if a pointer (represented as a uintptr) is aligned to a cache line boundary.
func IsAligned(addr uintptr) bool {
	return addr%CacheLineSize == 0
}

// AlignedBytes allocates a byte slice with its underlying array aligned to CacheLineSize.
// This is the recommended way to get an aligned slice in Go.
func AlignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	// Allocate extra space to allow for alignment.
	// The extra space needed is at most CacheLineSize - 1.
	buf := make([]byte, size+CacheLineSize-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))

	// If ptr is already aligned, offset will be 0.
	offset := uintptr(0)
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = CacheLineSize - mod
	}

	return buf[offset : offset+uintptr(size)]
}

// AlignedComplex allocates n complex128 scalars whose first element starts on
// a cache line. Each walker record in the arena begins at a multiple of
// ComplexSize from that address.
func AlignedComplex(n int) []complex128 {
	if n == 0 {
		return nil
	}
	raw := AlignedBytes(n * ComplexSize)
	return unsafe.Slice((*complex128)(unsafe.Pointer(&raw[0])), n)
}
