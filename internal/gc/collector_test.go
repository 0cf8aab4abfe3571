package gc

import (
	"testing"
	"unsafe"

	"github.com/orizon-lang/heapvm/internal/allocator"
)

// newHeap builds a fresh allocator for each test. *allocator.Allocator
// satisfies HeapCapability structurally, so tests exercise the real chunk
// list and address index rather than a mock double — see DESIGN.md for why
// a generated mock was dropped in favor of this.
func newHeap(t *testing.T) *allocator.Allocator {
	t.Helper()

	a, err := allocator.New()
	if err != nil {
		t.Fatalf("allocator.New: %v", err)
	}

	return a
}

func TestCollectReclaimsUnrootedChunk(t *testing.T) {
	heap := newHeap(t)
	c := New(heap)

	ptr, err := heap.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	_ = ptr

	before := heap.Stats()

	c.Collect()

	stats := c.LastStats()
	if stats.Freed != 1 {
		t.Fatalf("Freed = %d, want 1", stats.Freed)
	}

	if stats.Retained != 0 {
		t.Fatalf("Retained = %d, want 0", stats.Retained)
	}

	after := heap.Stats()
	if after.LiveAllocations != before.LiveAllocations-1 {
		t.Fatalf("LiveAllocations after collect = %d, want %d", after.LiveAllocations, before.LiveAllocations-1)
	}

	if c.Cycles() != 1 {
		t.Fatalf("Cycles() = %d, want 1", c.Cycles())
	}
}

func TestCollectRetainsRootedChunk(t *testing.T) {
	heap := newHeap(t)
	c := New(heap)

	ptr, err := heap.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var root allocator.Root

	heap.AssignRoot(&root, ptr)

	c.Collect()

	stats := c.LastStats()
	if stats.Retained != 1 {
		t.Fatalf("Retained = %d, want 1", stats.Retained)
	}

	if stats.Freed != 0 {
		t.Fatalf("Freed = %d, want 0", stats.Freed)
	}

	if heap.Stats().LiveAllocations != 1 {
		t.Fatalf("LiveAllocations = %d, want 1", heap.Stats().LiveAllocations)
	}
}

// word-sized payload holder used to plant a conservative pointer candidate:
// the field's bit pattern is a heap address, which PayloadCandidates must
// surface without any type information.
type linkPayload struct {
	tag  uintptr
	next unsafe.Pointer
}

func TestCollectFollowsInteriorPointerTransitively(t *testing.T) {
	heap := newHeap(t)
	c := New(heap)

	tailPtr, err := heap.Allocate(unsafe.Sizeof(linkPayload{}), nil)
	if err != nil {
		t.Fatalf("Allocate tail: %v", err)
	}

	headPtr, err := heap.Allocate(unsafe.Sizeof(linkPayload{}), nil)
	if err != nil {
		t.Fatalf("Allocate head: %v", err)
	}

	head := (*linkPayload)(headPtr)
	head.tag = 0xBEEF
	head.next = tailPtr

	var root allocator.Root

	heap.AssignRoot(&root, headPtr)

	c.Collect()

	stats := c.LastStats()
	if stats.Retained != 2 {
		t.Fatalf("Retained = %d, want 2 (head and the tail it references)", stats.Retained)
	}

	if stats.Freed != 0 {
		t.Fatalf("Freed = %d, want 0", stats.Freed)
	}
}

func TestCollectFreesOrphanAfterRootDrops(t *testing.T) {
	heap := newHeap(t)
	c := New(heap)

	ptr, err := heap.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var root allocator.Root

	heap.AssignRoot(&root, ptr)

	c.Collect()

	if c.LastStats().Retained != 1 {
		t.Fatalf("first Collect should retain the rooted chunk, Retained = %d", c.LastStats().Retained)
	}

	// Drop the root: the slot's value no longer points into the heap, so
	// phase 0's compaction should prune it and the next collect reclaims
	// the chunk.
	root.Ptr = nil

	c.Collect()

	if c.LastStats().Freed != 1 {
		t.Fatalf("second Collect should free the now-unrooted chunk, Freed = %d", c.LastStats().Freed)
	}

	if len(heap.Roots()) != 0 {
		t.Fatalf("dropped root slot should have been compacted away, got %d roots", len(heap.Roots()))
	}
}

// reentrantHeap wraps a real allocator but calls back into the collector
// from Roots(), simulating a root-materialization step that (incorrectly)
// triggers another collection mid-cycle (spec.md §4.3, "collect while
// collect is in progress is forbidden").
type reentrantHeap struct {
	*allocator.Allocator
	c *Collector
}

func (r *reentrantHeap) Roots() []*allocator.Root {
	r.c.Collect()

	return r.Allocator.Roots()
}

func TestCollectReentrantPanics(t *testing.T) {
	heap := newHeap(t)
	c := New(heap)
	c.heap = &reentrantHeap{Allocator: heap, c: c}

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic from a reentrant Collect call")
		}
	}()

	c.Collect()
}
