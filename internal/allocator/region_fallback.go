//go:build !linux

package allocator

import (
	"fmt"
	"unsafe"
)

// maxFallbackCapacity bounds the single upfront reservation used on
// platforms without a raw mmap-at-address primitive. It stands in for the
// kernel's virtual address space: we reserve it once so that "growth" never
// has to move already-handed-out pointers, at the cost of a hard ceiling
// spec.md's Linux mmap path doesn't have.
const maxFallbackCapacity = 256 * 1024 * 1024

// reservedHeap pre-allocates its entire ceiling as a single Go slice kept
// alive for the process lifetime (spec.md §5: the region is never
// released). "acquire" and "extend" only ever move a logical capacity
// marker within that reservation, so contiguity is trivially preserved.
type reservedHeap struct {
	backing []byte
}

func newOSHeap() osHeap {
	return &reservedHeap{backing: make([]byte, maxFallbackCapacity)}
}

func (h *reservedHeap) acquire(size uintptr) (unsafe.Pointer, error) {
	if size > uintptr(len(h.backing)) {
		return nil, fmt.Errorf("initial heap size %d exceeds fallback reservation %d", size, len(h.backing))
	}

	return unsafe.Pointer(&h.backing[0]), nil
}

func (h *reservedHeap) extend(base unsafe.Pointer, currentSize, extra uintptr) (uintptr, error) {
	if currentSize+extra > uintptr(len(h.backing)) {
		return 0, fmt.Errorf("heap growth to %d bytes exceeds fallback reservation %d",
			currentSize+extra, len(h.backing))
	}

	return extra, nil
}

// pageSize reports a conventional page size. There is no real mmap here to
// page-align against, but region.grow rounds against this unconditionally so
// the two build-tagged osHeap implementations share one growth contract.
func (h *reservedHeap) pageSize() uintptr { return 4096 }
