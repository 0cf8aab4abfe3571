// Package allocator implements a userspace heap: a contiguous memory region
// managed as a doubly-linked list of in-band chunk headers, allocated by
// best-fit search with split-on-allocate and coalesce-on-free.
package allocator

import "unsafe"

// headerSize is the in-memory size of chunkHeader. Declared separately from
// unsafe.Sizeof so split/coalesce arithmetic reads the same everywhere.
const headerSize = unsafe.Sizeof(chunkHeader{})

// noOffset marks the absence of a prev/next link. It is the largest uintptr
// value, which no real chunk offset inside a mapped region can reach.
const noOffset = ^uintptr(0)

// chunkHeader is the in-band metadata prefixing every chunk's payload.
// prev/next are byte offsets from the owning region's base address rather
// than Go pointers, so the Go runtime never treats them as pointers into the
// arena; growth never moves the base, so offsets stay valid for the
// region's whole lifetime. "Address of a chunk" means the offset of
// its header; a payload pointer is always headerOffset + headerSize.
type chunkHeader struct {
	size   uintptr
	isFree bool
	marked bool
	prev   uintptr
	next   uintptr
}

func (c *chunkHeader) hasPrev() bool { return c.prev != noOffset }
func (c *chunkHeader) hasNext() bool { return c.next != noOffset }

// payloadOffset returns the offset of the payload belonging to the chunk
// whose header starts at headerOffset.
func payloadOffset(headerOffset uintptr) uintptr {
	return headerOffset + headerSize
}

// chunkAt reinterprets the bytes at off within base as a *chunkHeader.
// Callers must ensure off+headerSize does not exceed the mapped region.
func chunkAt(base unsafe.Pointer, off uintptr) *chunkHeader {
	return (*chunkHeader)(unsafe.Pointer(uintptr(base) + off))
}
