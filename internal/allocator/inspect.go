package allocator

import "unsafe"

// ChunkInfo is a read-only snapshot of one chunk, for diagnostic tooling
// (internal/heapdump) that has no business reaching into chunk-list
// internals directly.
type ChunkInfo struct {
	Offset uintptr
	Size   uintptr
	IsFree bool
	Marked bool
	Ptr    unsafe.Pointer
}

// Chunks returns a snapshot of every chunk in address order. Grounded on
// original_source/lib/allocator.cpp::heap_dump's list walk, generalized
// into a plain accessor so internal/heapdump can format it however it
// likes.
func (a *Allocator) Chunks() []ChunkInfo {
	var out []ChunkInfo

	a.walk(func(off uintptr, c *chunkHeader) {
		out = append(out, ChunkInfo{
			Offset: off,
			Size:   c.size,
			IsFree: c.isFree,
			Marked: c.marked,
			Ptr:    a.region.payloadPtr(off),
		})
	})

	return out
}
