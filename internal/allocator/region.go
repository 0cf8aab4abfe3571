package allocator

import (
	"unsafe"

	"github.com/orizon-lang/heapvm/internal/errors"
)

// initialHeapCapacity is the default size of the heap region on first
// acquisition (spec: 1 MiB).
const initialHeapCapacity = 1 * 1024 * 1024

// osHeap is the OS-facing half of region acquisition: map an initial range,
// and (if possible) extend it so the result stays contiguous with what was
// already mapped. Implementations live in region_unix.go (real mmap, with
// MAP_FIXED_NOREPLACE growth) and region_fallback.go (a single upfront
// reservation, for platforms without a raw mmap-at-address primitive).
type osHeap interface {
	acquire(size uintptr) (unsafe.Pointer, error)
	// extend maps extra more bytes immediately past the current mapping and
	// returns how many bytes were actually added. Callers must pass an
	// extra already rounded up via pageSize, since a fixed-address mapping
	// request has to land on a page boundary.
	extend(base unsafe.Pointer, currentSize, extra uintptr) (uintptr, error)
	// pageSize reports the granularity extend's address arithmetic must
	// round to.
	pageSize() uintptr
}

// alignUp rounds n up to the next multiple of align (align must be a power
// of two, as every real page size is).
func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// region owns the contiguous byte range backing the chunk list. used is the
// offset of the first unused byte; capacity is the current mapped size.
// Growth only ever extends capacity, and only in a way that keeps base
// fixed, so any payload pointer handed out earlier remains valid for the
// region's entire lifetime (spec.md §5: memory is never returned to the OS,
// and the region outlives every pointer into it).
type region struct {
	os       osHeap
	base     unsafe.Pointer
	capacity uintptr
	used     uintptr
}

// newRegion acquires the initial heap range from the OS.
func newRegion(os osHeap) (*region, error) {
	base, err := os.acquire(initialHeapCapacity)
	if err != nil {
		return nil, errors.NewStandardError(errors.CategorySystem, "HEAP_INIT_FAILED",
			"failed to acquire initial heap region from the OS", map[string]interface{}{
				"requested": initialHeapCapacity,
				"cause":     err.Error(),
			})
	}

	return &region{os: os, base: base, capacity: initialHeapCapacity}, nil
}

// grow extends the region so at least shortfall additional bytes become
// available beyond the current capacity, per spec.md §4.1's 2x-shortfall
// growth policy. It never shrinks and never moves base. extra is rounded up
// to a full page before mapping: a fixed-address mmap requires both the
// target address and the length to be page-aligned, and capacity must stay
// page-aligned too so the *next* grow's wantAddr is still a valid target.
func (r *region) grow(shortfall uintptr) error {
	extra := alignUp(2*shortfall, r.os.pageSize())

	added, err := r.os.extend(r.base, r.capacity, extra)
	if err != nil {
		return errors.NewStandardError(errors.CategorySystem, "HEAP_GROW_FAILED",
			"failed to extend heap region contiguously", map[string]interface{}{
				"currentCapacity": r.capacity,
				"requestedExtra":  extra,
				"cause":           err.Error(),
			})
	}

	r.capacity += added

	return nil
}

// chunkAt returns the header at the given offset from the region base.
func (r *region) chunkAt(off uintptr) *chunkHeader {
	return chunkAt(r.base, off)
}

// payloadPtr returns the absolute address of the payload following the
// header at headerOffset.
func (r *region) payloadPtr(headerOffset uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(r.base) + payloadOffset(headerOffset))
}

// offsetOf converts an absolute pointer inside the region into an offset
// from base. Callers must have already validated p lies within the region.
func (r *region) offsetOf(p unsafe.Pointer) uintptr {
	return uintptr(p) - uintptr(r.base)
}

// contains reports whether p lies in [base, base+used).
func (r *region) contains(p unsafe.Pointer) bool {
	addr := uintptr(p)
	start := uintptr(r.base)

	return addr >= start && addr < start+r.used
}
