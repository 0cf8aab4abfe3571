package gc

import (
	"github.com/orizon-lang/heapvm/internal/allocator"
	"github.com/orizon-lang/heapvm/internal/errors"
)

// Collector runs mark-and-sweep cycles over a HeapCapability. Grounded on
// original_source/lib/garbage_collector.cpp's get_roots/gc_collect shape,
// translated into the work-stack mark discipline spec.md §4.3 specifies.
type Collector struct {
	heap       HeapCapability
	collecting bool
	debug      bool
	cycles     uint64
	lastStats  allocator.SweepStats
}

// New constructs a Collector driving heap. Wired in after the Allocator
// exists (see the heapvm package's facade), never the other way around.
func New(heap HeapCapability) *Collector {
	return &Collector{heap: heap}
}

// SetDebug toggles debug-gated logging.
func (c *Collector) SetDebug(enabled bool) { c.debug = enabled }

// Cycles reports how many collections have run.
func (c *Collector) Cycles() uint64 { return c.cycles }

// LastStats reports the sweep outcome of the most recent cycle.
func (c *Collector) LastStats() allocator.SweepStats { return c.lastStats }

// Collect runs phases 0-3 of spec.md §4.3 to completion. Non-reentrant:
// calling Collect from within a running Collect is a fatal caller error
// (spec.md §4.3, "calling collect while collect is in progress is
// forbidden").
func (c *Collector) Collect() {
	if c.collecting {
		panic(errors.NewStandardError(errors.CategorySystem, "GC_REENTRANT",
			"collect called while a collection is already in progress", nil))
	}

	c.collecting = true
	defer func() { c.collecting = false }()

	c.logf("collect: cycle %d starting", c.cycles+1)

	work := c.materializeRoots()
	c.logf("collect: %d root-reachable chunk(s) to mark", len(work))

	c.mark(work)

	stats := c.heap.Sweep()
	c.cycles++
	c.lastStats = stats

	c.logf("collect: cycle %d done, freed=%d retained=%d", c.cycles, stats.Freed, stats.Retained)
}

// materializeRoots is Phase 0: read every registered root, map values that
// point into the heap to their chunk, and compact away slots whose value
// no longer points into the heap.
func (c *Collector) materializeRoots() []allocator.ChunkRef {
	roots := c.heap.Roots()

	work := make([]allocator.ChunkRef, 0, len(roots))

	for _, root := range roots {
		if !c.heap.Contains(root.Ptr) {
			continue
		}

		if ref, ok := c.heap.ChunkFor(root.Ptr); ok {
			work = append(work, ref)
		}
	}

	c.heap.CompactRoots(func(r *allocator.Root) bool {
		return c.heap.Contains(r.Ptr)
	})

	return work
}

// mark is Phase 2: the conservative, word-aligned transitive closure over
// payloads, driven by a LIFO work stack (spec.md §4.3 Phase 2). Phase 1
// (unmark) is fused into the previous cycle's sweep — see
// internal/allocator.Allocator.Sweep and DESIGN.md's open-question note on
// invariant I5.
func (c *Collector) mark(work []allocator.ChunkRef) {
	for len(work) > 0 {
		n := len(work) - 1
		ref := work[n]
		work = work[:n]

		if c.heap.IsMarked(ref) {
			continue
		}

		for _, candidate := range c.heap.PayloadCandidates(ref) {
			childRef, ok := c.heap.ChunkFor(candidate)
			if ok && !c.heap.IsMarked(childRef) {
				work = append(work, childRef)
			}
		}

		c.heap.Mark(ref)
	}
}
