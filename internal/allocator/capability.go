package allocator

import "unsafe"

// ChunkRef identifies a chunk by its header offset from the heap base. It
// is opaque to internal/gc — the collector never reinterprets it itself,
// only passes it back into the methods below. Keeping chunk layout
// knowledge inside this package is the "payload-scan logic physically
// lives with the allocator" half of spec.md §9's capability-object design.
type ChunkRef uintptr

// wordSize is the granularity of conservative payload scanning (spec.md
// §4.3 Phase 2: "for each aligned word offset").
const wordSize = unsafe.Sizeof(uintptr(0))

// Contains reports whether ptr falls within the heap's used prefix.
func (a *Allocator) Contains(ptr unsafe.Pointer) bool {
	return ptr != nil && a.region.contains(ptr)
}

// ChunkFor maps a pointer to the chunk it belongs to, via the address
// index — so only an exact payload address resolves, never an interior
// pointer (spec.md §4.3: "map it to its chunk via the address index").
func (a *Allocator) ChunkFor(ptr unsafe.Pointer) (ChunkRef, bool) {
	if !a.Contains(ptr) {
		return 0, false
	}

	payloadOff := a.region.offsetOf(ptr)
	if _, ok := a.index.lookup(payloadOff); !ok {
		return 0, false
	}

	return ChunkRef(payloadOff - headerSize), true
}

// PayloadCandidates scans the payload of the chunk referenced by ref at
// every word-aligned offset and returns each non-zero word reinterpreted
// as a pointer candidate. Candidates are not yet validated against the
// heap or the address index — the caller (internal/gc) does that via
// ChunkFor. Conservative by construction: any word-sized bit pattern that
// happens to equal a live payload address is indistinguishable from a real
// pointer (spec.md §4.3, "Conservativity").
func (a *Allocator) PayloadCandidates(ref ChunkRef) []unsafe.Pointer {
	c := a.region.chunkAt(uintptr(ref))
	base := uintptr(a.region.payloadPtr(uintptr(ref)))

	var out []unsafe.Pointer

	for o := uintptr(0); o+wordSize <= c.size; o += wordSize {
		word := *(*uintptr)(unsafe.Pointer(base + o)) //nolint:govet // conservative scan
		if word != 0 {
			out = append(out, unsafe.Pointer(word)) //nolint:govet // conservative scan
		}
	}

	return out
}

// IsMarked reports the chunk's mark bit.
func (a *Allocator) IsMarked(ref ChunkRef) bool {
	return a.region.chunkAt(uintptr(ref)).marked
}

// Mark sets the chunk's mark bit.
func (a *Allocator) Mark(ref ChunkRef) {
	a.region.chunkAt(uintptr(ref)).marked = true
}

// Roots returns the live root slots. The collector must not retain this
// slice across calls to CompactRoots, which rewrites its backing array in
// place.
func (a *Allocator) Roots() []*Root {
	return a.roots.all()
}

// CompactRoots drops every root slot for which keep returns false
// (spec.md §4.3 Phase 0's registry compaction).
func (a *Allocator) CompactRoots(keep func(*Root) bool) {
	a.roots.compact(keep)
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Freed    int
	Retained int
}

// Sweep walks the chunk list in address order (spec.md §4.3 Phase 3):
// every allocated, unmarked chunk is freed and coalesced with any free
// predecessor; every allocated, marked chunk has its mark bit cleared so
// the next cycle starts clean, fusing spec.md §4.3 Phase 1 into this pass
// per invariant I5's "meaningful only during a collection cycle" (see
// DESIGN.md open questions). Free chunks are left untouched.
func (a *Allocator) Sweep() SweepStats {
	var stats SweepStats

	if a.region.used == 0 {
		return stats
	}

	cur := uintptr(0)

	for {
		c := a.region.chunkAt(cur)

		switch {
		case c.isFree:
			if !c.hasNext() {
				return stats
			}

			cur = c.next

		case !c.marked:
			c.isFree = true
			a.index.remove(payloadOffset(cur))
			stats.Freed++

			survivor := a.doCoalesce(cur)
			sc := a.region.chunkAt(survivor)

			if !sc.hasNext() {
				return stats
			}

			cur = sc.next

		default:
			c.marked = false
			stats.Retained++

			if !c.hasNext() {
				return stats
			}

			cur = c.next
		}
	}
}
