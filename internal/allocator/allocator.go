package allocator

import (
	"unsafe"

	"github.com/orizon-lang/heapvm/internal/errors"
)

// Allocator owns a single contiguous heap region and the address index and
// root registry layered over it. It implements spec.md §4.1's best-fit
// allocate/deallocate with split-on-allocate and coalesce-on-free.
//
// Grounded on the teacher's Allocator interface shape
// (Alloc/Free/Realloc/Stats) in the now-deleted internal/allocator/allocator.go,
// generalized from size-classed pool allocation to chunk-list best fit; the
// chunk-list algorithms themselves are grounded on
// original_source/lib/allocator.cpp.
type Allocator struct {
	region *region
	index  *addressIndex
	roots  *rootRegistry

	// collectHook lets allocate/RegisterRoot trigger a collection without
	// the allocator owning a *gc.Collector (spec.md §9's capability-object
	// design: wired in by facade.go after both sides exist, so neither
	// package imports the other directly).
	collectHook func()

	debug      bool
	allocCount uint64
	freeCount  uint64

	// tailOffset caches the offset of the last chunk in address order, so
	// appendChunk doesn't have to walk the whole chunk list (which would
	// make a long run of heap-growing allocations quadratic) to find where
	// to link the new chunk in.
	tailOffset uintptr
}

// Stats summarizes allocator activity, in the spirit of the teacher's
// AllocatorStats (originally tracking pool hit/miss rates; here it reports
// chunk-list occupancy instead).
type Stats struct {
	Capacity        uintptr
	Used            uintptr
	LiveAllocations int
	AllocationCount uint64
	FreeCount       uint64
}

// New constructs an Allocator with a freshly acquired heap region.
func New() (*Allocator, error) {
	r, err := newRegion(newOSHeap())
	if err != nil {
		return nil, err
	}

	return &Allocator{
		region:     r,
		index:      newAddressIndex(),
		roots:      newRootRegistry(),
		tailOffset: noOffset,
	}, nil
}

// SetCollectHook wires the collector capability used when an allocation or
// a full root registry needs to trigger a collection cycle. Must be called
// exactly once, after both the Allocator and its collector exist.
func (a *Allocator) SetCollectHook(fn func()) { a.collectHook = fn }

// SetDebug toggles the debug-gated logging helpers in debug.go, mirroring
// original_source's DEBUG_MODE flag threaded through Allocator and
// Garbage_Collector.
func (a *Allocator) SetDebug(enabled bool) { a.debug = enabled }

// ErrOutOfMemory is returned by Allocate when the OS refuses to grow the
// heap (spec.md §7: "resource exhaustion / recoverable at the API
// boundary").
var ErrOutOfMemory = errors.NewStandardError(errors.CategoryMemory, "OUT_OF_MEMORY",
	"heap allocator could not grow the heap region", nil)

// ErrIndexExhausted is returned by Allocate when the address index's node
// pool has no free slots left.
var ErrIndexExhausted = errors.NewStandardError(errors.CategoryMemory, "INDEX_EXHAUSTED",
	"address index node pool exhausted", nil)

// Allocate returns a pointer to a payload region of at least size bytes.
// size == 0 returns (nil, nil) without mutating any state (spec.md §4.1
// step 1). If rootSlot is non-nil, it is registered as a GC root pointing
// at the new allocation on success.
func (a *Allocator) Allocate(size uintptr, rootSlot *Root) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, nil
	}

	if err := a.ensureCapacity(size); err != nil {
		return nil, err
	}

	headerOff, err := a.placeChunk(size)
	if err != nil {
		return nil, err
	}

	payloadOff := payloadOffset(headerOff)
	finalSize := a.region.chunkAt(headerOff).size

	if !a.index.insert(payloadOff, finalSize) {
		// Roll back: the chunk list must not retain an entry the index
		// can't validate later (spec.md §4.4).
		a.region.chunkAt(headerOff).isFree = true
		a.doCoalesce(headerOff)

		return nil, ErrIndexExhausted
	}

	a.allocCount++

	ptr := a.region.payloadPtr(headerOff)
	a.logf("allocate size=%d -> offset=%#x ptr=%p", size, headerOff, ptr)

	if rootSlot != nil {
		rootSlot.Ptr = ptr
		a.RegisterRoot(rootSlot)
	}

	return ptr, nil
}

// ensureCapacity runs the collector once and grows the heap if the request
// would otherwise exceed capacity (spec.md §4.1 step 2). A request that
// exactly exhausts the remaining capacity counts as exceeding it — there
// would be no byte left for any future allocation, so the same
// collect-then-grow path applies (resolves spec.md's boundary-behavior
// note; see SPEC_FULL.md §10).
func (a *Allocator) ensureCapacity(size uintptr) error {
	need := a.region.used + size + headerSize
	if need < a.region.capacity {
		return nil
	}

	a.triggerCollect()

	need = a.region.used + size + headerSize
	if need < a.region.capacity {
		return nil
	}

	shortfall := need - a.region.capacity
	if shortfall == 0 {
		// need == capacity: still grow, by the smallest non-empty amount
		// (grow rounds it up to a page).
		shortfall = 1
	}

	if err := a.region.grow(shortfall); err != nil {
		a.logf("grow failed: %v", err)

		return ErrOutOfMemory
	}

	return nil
}

// placeChunk finds or creates a chunk of exactly size bytes and marks it
// allocated, returning its header offset.
func (a *Allocator) placeChunk(size uintptr) (uintptr, error) {
	if a.region.used == 0 {
		return a.appendChunk(size), nil
	}

	if bestOff, ok := a.findBestFit(size); ok {
		a.splitAndTake(bestOff, size)

		return bestOff, nil
	}

	return a.appendChunk(size), nil
}

// findBestFit walks the chunk list in address order looking for the
// smallest free chunk that fits size, ties broken by earliest address
// (spec.md §4.1 step 4 — address-order traversal means the first chunk
// seen at the winning size is kept).
func (a *Allocator) findBestFit(size uintptr) (uintptr, bool) {
	var (
		bestOff  uintptr
		bestSize uintptr
		found    bool
	)

	a.walk(func(off uintptr, c *chunkHeader) {
		if c.isFree && c.size >= size {
			if !found || c.size < bestSize {
				bestOff, bestSize, found = off, c.size, true
			}
		}
	})

	return bestOff, found
}

// splitAndTake marks the winning chunk at off allocated, splitting off a
// free remainder when the excess is large enough to hold another header
// plus at least one byte (spec.md §4.1 step 5).
func (a *Allocator) splitAndTake(off uintptr, size uintptr) {
	c := a.region.chunkAt(off)
	excess := c.size - size

	if excess >= headerSize+1 {
		newOff := off + headerSize + size
		newChunk := a.region.chunkAt(newOff)
		*newChunk = chunkHeader{
			size:   excess - headerSize,
			isFree: true,
			prev:   off,
			next:   c.next,
		}

		if newChunk.hasNext() {
			a.region.chunkAt(newChunk.next).prev = newOff
		}

		c.next = newOff
		c.size = size
	}

	c.isFree = false
}

// appendChunk grows the used prefix by one new allocated chunk at the
// high-water mark (spec.md §4.1 step 6).
func (a *Allocator) appendChunk(size uintptr) uintptr {
	newOff := a.region.used
	tailOff := a.tailOffset

	newChunk := a.region.chunkAt(newOff)
	*newChunk = chunkHeader{size: size, isFree: false, prev: tailOff, next: noOffset}

	if tailOff != noOffset {
		a.region.chunkAt(tailOff).next = newOff
	}

	a.region.used += headerSize + size
	a.tailOffset = newOff

	return newOff
}

// walk visits every chunk in address order from the head.
func (a *Allocator) walk(visit func(off uintptr, c *chunkHeader)) {
	if a.region.used == 0 {
		return
	}

	off := uintptr(0)
	for {
		c := a.region.chunkAt(off)
		visit(off, c)

		if !c.hasNext() {
			return
		}

		off = c.next
	}
}

// Deallocate frees the chunk at ptr. A nil ptr is a no-op. Any other
// pointer that is not currently a live allocation is a fatal caller error
// (spec.md §4.1 "deallocate", §7).
func (a *Allocator) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	if !a.region.contains(ptr) {
		panic(errors.NewStandardError(errors.CategoryMemory, "INVALID_FREE",
			"deallocate called with a pointer outside the heap", map[string]interface{}{
				"pointer": ptr,
			}))
	}

	payloadOff := a.region.offsetOf(ptr)

	if _, ok := a.index.lookup(payloadOff); !ok {
		panic(errors.NewStandardError(errors.CategoryMemory, "INVALID_FREE",
			"deallocate called with a pointer that is not a live allocation", map[string]interface{}{
				"pointer": ptr,
			}))
	}

	headerOff := payloadOff - headerSize
	a.region.chunkAt(headerOff).isFree = true
	a.index.remove(payloadOff)
	a.freeCount++
	a.logf("deallocate ptr=%p offset=%#x", ptr, headerOff)

	a.doCoalesce(headerOff)
}

// doCoalesce merges the chunk at off with its free next neighbor first,
// then its free prev neighbor, re-establishing I3 (spec.md §4.1
// "Coalescing absorbs neighbor payload, its header, and rewrites the
// surviving chunk's links"). Returns the offset of the surviving chunk —
// off itself, unless a backward merge absorbed off into its predecessor,
// in which case the predecessor's offset is returned so callers that were
// mid-traversal can keep following accurate links.
func (a *Allocator) doCoalesce(off uintptr) uintptr {
	c := a.region.chunkAt(off)

	if c.hasNext() {
		next := a.region.chunkAt(c.next)
		if next.isFree {
			c.size += headerSize + next.size
			c.next = next.next

			if c.hasNext() {
				a.region.chunkAt(c.next).prev = off
			} else {
				// next was the tail and got absorbed forward into off: off is
				// now the tail.
				a.tailOffset = off
			}
		}
	}

	if c.hasPrev() {
		prev := a.region.chunkAt(c.prev)
		if prev.isFree {
			prev.size += headerSize + c.size
			prev.next = c.next

			if prev.hasNext() {
				a.region.chunkAt(prev.next).prev = c.prev
			} else if a.tailOffset == off {
				// off was the tail and got absorbed backward into prev: prev
				// is now the tail.
				a.tailOffset = c.prev
			}

			return c.prev
		}
	}

	return off
}

// Stats reports current allocator occupancy.
func (a *Allocator) Stats() Stats {
	return Stats{
		Capacity:        a.region.capacity,
		Used:            a.region.used,
		LiveAllocations: a.index.size(),
		AllocationCount: a.allocCount,
		FreeCount:       a.freeCount,
	}
}
