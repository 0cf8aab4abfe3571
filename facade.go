// Package heapvm composes internal/allocator and internal/gc into the single
// public handle a caller actually uses. Neither internal package imports the
// other (spec.md §9's capability-object design); this is the one place that
// sees both concrete types and wires the collector hook between them.
package heapvm

import (
	"io"
	"sync"
	"unsafe"

	"github.com/orizon-lang/heapvm/internal/allocator"
	"github.com/orizon-lang/heapvm/internal/gc"
	"github.com/orizon-lang/heapvm/internal/heapdump"
)

// Root is re-exported so callers never need to import internal/allocator
// directly. It is the Go rendering of spec.md §6's "root slot": the address
// of a Root value the caller owns, passed to RegisterRoot/AssignRoot/Allocate.
type Root = allocator.Root

// Handle is the userspace heap: one allocator instance and the collector
// driving it. Grounded on the teacher's lazily-initialized subsystem handles
// (e.g. internal/runtime's singleton device/session wrappers), generalized
// to the allocator+collector pair spec.md §9 describes as "tightly coupled
// but never directly referencing one another's concrete types".
type Handle struct {
	alloc *allocator.Allocator
	gc    *gc.Collector
}

var (
	instance *Handle
	once     sync.Once
	initErr  error
)

// Instance returns the process-wide heap, constructing it on first use. The
// debug flag (the first value, if any is passed) is applied once, at construction;
// later calls ignore it and return the existing handle. Matches the
// lazy-singleton shape spec.md §9 calls for ("one heap per process, created
// on first use").
func Instance(debug ...bool) (*Handle, error) {
	once.Do(func() {
		instance, initErr = newHandle(len(debug) > 0 && debug[0])
	})

	return instance, initErr
}

// NewHandle constructs a standalone Handle, bypassing the process-wide
// singleton. Tests use this to get independent heaps; production code
// should prefer Instance.
func NewHandle(debug bool) (*Handle, error) {
	return newHandle(debug)
}

func newHandle(debug bool) (*Handle, error) {
	a, err := allocator.New()
	if err != nil {
		return nil, err
	}

	c := gc.New(a)
	a.SetCollectHook(c.Collect)
	a.SetDebug(debug)
	c.SetDebug(debug)

	return &Handle{alloc: a, gc: c}, nil
}

// SetDebug toggles debug-gated logging in both the allocator and the
// collector.
func (h *Handle) SetDebug(enabled bool) {
	h.alloc.SetDebug(enabled)
	h.gc.SetDebug(enabled)
}

// Allocate returns a pointer to a payload region of at least size bytes. If
// rootSlot is non-nil it is registered as a GC root pointing at the new
// allocation on success (spec.md §4.1, §4.2).
func (h *Handle) Allocate(size uintptr, rootSlot *Root) (unsafe.Pointer, error) {
	return h.alloc.Allocate(size, rootSlot)
}

// Deallocate frees the chunk at ptr. A nil ptr is a no-op; any other pointer
// that is not a live allocation is a fatal caller error (spec.md §4.1, §7).
func (h *Handle) Deallocate(ptr unsafe.Pointer) {
	h.alloc.Deallocate(ptr)
}

// RegisterRoot records slot as a GC root if it currently points into the
// heap (spec.md §4.2).
func (h *Handle) RegisterRoot(slot *Root) {
	h.alloc.RegisterRoot(slot)
}

// AssignRoot writes src into *dest and registers dest as a root, returning
// src (spec.md §4.2).
func (h *Handle) AssignRoot(dest *Root, src unsafe.Pointer) unsafe.Pointer {
	return h.alloc.AssignRoot(dest, src)
}

// Collect runs one mark-and-sweep cycle synchronously (spec.md §4.3).
func (h *Handle) Collect() {
	h.gc.Collect()
}

// Stats reports current allocator occupancy.
func (h *Handle) Stats() allocator.Stats {
	return h.alloc.Stats()
}

// GCCycles reports how many collections have run on this handle.
func (h *Handle) GCCycles() uint64 {
	return h.gc.Cycles()
}

// LastSweepStats reports the outcome of the most recent collection cycle.
func (h *Handle) LastSweepStats() allocator.SweepStats {
	return h.gc.LastStats()
}

// DumpHeap writes a human-readable chunk-list listing to w (spec.md §6's
// out-of-core "heap dump" operation).
func (h *Handle) DumpHeap(w io.Writer, allocatedOnly bool) {
	heapdump.DumpHeap(w, h.alloc, allocatedOnly)
}

// DumpRoots writes a human-readable root-registry listing to w.
func (h *Handle) DumpRoots(w io.Writer) {
	heapdump.DumpRoots(w, h.alloc)
}
