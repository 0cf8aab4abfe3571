// Package gc implements the conservative mark-and-sweep collector over a
// heap owned by internal/allocator. It never holds a concrete
// *allocator.Allocator — only the HeapCapability interface below — so the
// two packages don't import each other (spec.md §9's capability-object
// design note: "do not let the collector own the allocator nor vice
// versa").
package gc

import (
	"unsafe"

	"github.com/orizon-lang/heapvm/internal/allocator"
)

// HeapCapability is the minimal surface the collector needs from the heap
// it scans: resolving pointers to chunks, reading/writing mark bits,
// reading and compacting the root registry, and running the sweep pass.
// Chunk-layout knowledge (payload scanning, chunk-list coalescing) stays
// inside internal/allocator, which implements this interface on
// *allocator.Allocator.
type HeapCapability interface {
	Contains(ptr unsafe.Pointer) bool
	ChunkFor(ptr unsafe.Pointer) (allocator.ChunkRef, bool)
	PayloadCandidates(ref allocator.ChunkRef) []unsafe.Pointer
	IsMarked(ref allocator.ChunkRef) bool
	Mark(ref allocator.ChunkRef)
	Roots() []*allocator.Root
	CompactRoots(keep func(*allocator.Root) bool)
	Sweep() allocator.SweepStats
}
