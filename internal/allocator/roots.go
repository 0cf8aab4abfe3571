package allocator

import "unsafe"

// rootRegistryCapacity bounds the number of tracked root slots (spec: 1000).
const rootRegistryCapacity = 1000

// Root is a caller-held variable that may currently hold a live heap
// pointer. Go has no notion of "the address of an arbitrary stack
// variable" the way the original C++ source's void** does, so a root slot
// here is the address of a Root value the caller owns; RegisterRoot and
// AssignRoot both take *Root. This is the Go rendering of spec.md §6's
// "root slot" (see SPEC_FULL.md §6).
type Root struct {
	Ptr unsafe.Pointer
}

// rootRegistry is the append-only sequence of registered root slots.
// Grounded on original_source/lib/garbage_collector.cpp's
// potential_stack_vars_containing_roots_list / add_gc_roots.
type rootRegistry struct {
	slots []*Root
}

func newRootRegistry() *rootRegistry {
	return &rootRegistry{slots: make([]*Root, 0, rootRegistryCapacity)}
}

func (rr *rootRegistry) full() bool {
	return len(rr.slots) >= rootRegistryCapacity
}

// append records slot without checking for duplicates (they are permitted: mark is
// idempotent, per spec.md §4.2). Returns false if at capacity.
func (rr *rootRegistry) append(slot *Root) bool {
	if rr.full() {
		return false
	}

	rr.slots = append(rr.slots, slot)

	return true
}

// forceAppend records slot even if the registry is already at capacity. Used
// only to make a just-allocated, not-yet-rooted chunk visible to a
// capacity-triggered collection before that collection runs, so it cannot be
// the thing the collection sweeps (see RegisterRoot).
func (rr *rootRegistry) forceAppend(slot *Root) {
	rr.slots = append(rr.slots, slot)
}

// compact drops slots for which keep returns false. Used by the collector's
// root-materialization phase to prune slots whose current value no longer
// points into the heap (spec.md §4.3 Phase 0).
func (rr *rootRegistry) compact(keep func(*Root) bool) {
	kept := rr.slots[:0]

	for _, s := range rr.slots {
		if keep(s) {
			kept = append(kept, s)
		}
	}

	rr.slots = kept
}

func (rr *rootRegistry) all() []*Root { return rr.slots }

// RegisterRoot appends slot to the root registry if it is not at capacity
// and *slot currently points into the heap. When the registry is full, slot
// is registered first (temporarily exceeding capacity) and only then does a
// collection run, so materializeRoots sees slot and the chunk it points at
// can never be the thing that very collection sweeps; the collection's own
// root compaction (spec.md §4.2, §4.3 Phase 0) then prunes dead slots. If
// the registry is still over capacity afterwards, slot is silently dropped.
func (a *Allocator) RegisterRoot(slot *Root) {
	if slot == nil || slot.Ptr == nil || !a.region.contains(slot.Ptr) {
		return
	}

	if a.roots.full() {
		a.roots.forceAppend(slot)
		a.triggerCollect()

		if len(a.roots.slots) > rootRegistryCapacity {
			// Still over capacity after the collection: drop slot again.
			a.roots.slots = a.roots.slots[:len(a.roots.slots)-1]
		}

		return
	}

	a.roots.append(slot)
}

// AssignRoot writes src into *dest and registers dest as a root, returning
// src. This is the supported way to create a persistent root from an
// already-allocated payload (spec.md §4.2).
func (a *Allocator) AssignRoot(dest *Root, src unsafe.Pointer) unsafe.Pointer {
	dest.Ptr = src
	a.RegisterRoot(dest)

	return src
}

// triggerCollect invokes the collector capability wired in at construction
// (see facade.go). allocate may call this; the collector itself must never
// call back into allocate (spec.md §5).
func (a *Allocator) triggerCollect() {
	if a.collectHook != nil {
		a.collectHook()
	}
}
