package allocator

import (
	"testing"
	"unsafe"

	heaperrors "github.com/orizon-lang/heapvm/internal/errors"
)

func TestAllocatorBasic(t *testing.T) {
	t.Run("ZeroSizeReturnsNil", func(t *testing.T) {
		a, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		ptr, err := a.Allocate(0, nil)
		if err != nil {
			t.Fatalf("Allocate(0): %v", err)
		}

		if ptr != nil {
			t.Error("Allocate(0) should return a nil pointer")
		}
	})

	t.Run("BasicAllocationIsWritable", func(t *testing.T) {
		a, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		ptr, err := a.Allocate(256, nil)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}

		if ptr == nil {
			t.Fatal("Allocate(256) returned nil")
		}

		data := (*[256]byte)(ptr)
		for i := range data {
			data[i] = byte(i)
		}

		for i := range data {
			if data[i] != byte(i) {
				t.Fatalf("data corruption at index %d", i)
			}
		}
	})

	t.Run("NilDeallocateIsNoop", func(t *testing.T) {
		a, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		a.Deallocate(nil)
	})

	t.Run("StatsTrackLiveAllocations", func(t *testing.T) {
		a, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		ptrs := make([]unsafe.Pointer, 5)

		for i := range ptrs {
			p, err := a.Allocate(64, nil)
			if err != nil {
				t.Fatalf("Allocate %d: %v", i, err)
			}

			ptrs[i] = p
		}

		stats := a.Stats()
		if stats.LiveAllocations != 5 {
			t.Fatalf("LiveAllocations = %d, want 5", stats.LiveAllocations)
		}

		if stats.AllocationCount != 5 {
			t.Fatalf("AllocationCount = %d, want 5", stats.AllocationCount)
		}

		a.Deallocate(ptrs[0])

		stats = a.Stats()
		if stats.LiveAllocations != 4 {
			t.Fatalf("LiveAllocations after one free = %d, want 4", stats.LiveAllocations)
		}

		if stats.FreeCount != 1 {
			t.Fatalf("FreeCount = %d, want 1", stats.FreeCount)
		}
	})
}

func TestAllocatorInvalidFreePanics(t *testing.T) {
	t.Run("PointerOutsideHeap", func(t *testing.T) {
		a, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		var stray int

		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected a panic freeing a pointer outside the heap")
			}

			se, ok := r.(*heaperrors.StandardError)
			if !ok {
				t.Fatalf("panic value is %T, want *errors.StandardError", r)
			}

			if se.Code != "INVALID_FREE" {
				t.Fatalf("panic code = %q, want INVALID_FREE", se.Code)
			}
		}()

		a.Deallocate(unsafe.Pointer(&stray))
	})

	t.Run("DoubleFree", func(t *testing.T) {
		a, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		ptr, err := a.Allocate(32, nil)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}

		a.Deallocate(ptr)

		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected a panic on double free")
			}
		}()

		a.Deallocate(ptr)
	})
}

// TestBestFitSplit exercises spec.md §8 scenario 1/2: the smallest adequate
// free chunk wins over a larger one, and a free chunk big enough to hold the
// request plus another header gets split, leaving a free remainder. big and
// small are kept non-adjacent (separated by spacer, an allocated chunk on
// each side) so freeing them doesn't coalesce the two candidates back into
// one chunk before the best-fit search runs.
func TestBestFitSplit(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	big, err := a.Allocate(512, nil)
	if err != nil {
		t.Fatalf("Allocate big: %v", err)
	}

	spacer, err := a.Allocate(32, nil)
	if err != nil {
		t.Fatalf("Allocate spacer: %v", err)
	}

	small, err := a.Allocate(128, nil)
	if err != nil {
		t.Fatalf("Allocate small: %v", err)
	}

	tail, err := a.Allocate(32, nil)
	if err != nil {
		t.Fatalf("Allocate tail: %v", err)
	}

	a.Deallocate(big)   // isolated free chunk of size 512 (spacer stays allocated)
	a.Deallocate(small) // isolated free chunk of size 128 (spacer/tail stay allocated)

	statsBefore := a.Stats()

	fit, err := a.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate 64: %v", err)
	}

	if fit != small {
		t.Errorf("best-fit allocate reused offset %p, want the smaller free chunk at %p", fit, small)
	}

	statsAfter := a.Stats()
	if statsAfter.LiveAllocations != statsBefore.LiveAllocations+1 {
		t.Errorf("LiveAllocations = %d, want %d", statsAfter.LiveAllocations, statsBefore.LiveAllocations+1)
	}

	a.Deallocate(fit)
	a.Deallocate(spacer)
	a.Deallocate(tail)
}

// TestCoalesceMergesNeighbors exercises spec.md §8 scenario 3: freeing a
// chunk between two other free chunks merges all three into one.
func TestCoalesceMergesNeighbors(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := a.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate first: %v", err)
	}

	middle, err := a.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate middle: %v", err)
	}

	last, err := a.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate last: %v", err)
	}

	a.Deallocate(first)
	a.Deallocate(last)
	a.Deallocate(middle)

	// All three chunks should now be one contiguous free run: the next
	// allocate for a size that needed all three chunks' combined payload
	// plus two header-widths should satisfy from this merged run without
	// growing the region.
	statsBefore := a.Stats()

	big, err := a.Allocate(64*3+2*headerSize, nil)
	if err != nil {
		t.Fatalf("Allocate merged-run size: %v", err)
	}

	if big != first {
		t.Errorf("merged allocate landed at %p, want the coalesced run's base %p", big, first)
	}

	statsAfter := a.Stats()
	if statsAfter.Capacity != statsBefore.Capacity {
		t.Errorf("Capacity changed from %d to %d; coalesced free space should have been reused",
			statsBefore.Capacity, statsAfter.Capacity)
	}
}

func TestRegisterAndAssignRoot(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ptr, err := a.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var root Root

	got := a.AssignRoot(&root, ptr)
	if got != ptr {
		t.Fatalf("AssignRoot returned %p, want %p", got, ptr)
	}

	roots := a.Roots()
	if len(roots) != 1 {
		t.Fatalf("len(Roots()) = %d, want 1", len(roots))
	}

	if roots[0].Ptr != ptr {
		t.Fatalf("registered root points at %p, want %p", roots[0].Ptr, ptr)
	}
}

func TestRegisterRootIgnoresPointerOutsideHeap(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var stray int

	slot := &Root{Ptr: unsafe.Pointer(&stray)}
	a.RegisterRoot(slot)

	if len(a.Roots()) != 0 {
		t.Fatalf("RegisterRoot should ignore a pointer outside the heap, got %d roots", len(a.Roots()))
	}
}

func TestGrowPreservesExistingPointers(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := a.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	data := (*[64]byte)(first)
	data[0] = 0xAB

	// Exhaust capacity so the next allocate must grow the region.
	initial := a.Stats().Capacity

	for a.Stats().Capacity == initial {
		if _, err := a.Allocate(4096, nil); err != nil {
			t.Fatalf("Allocate while growing: %v", err)
		}
	}

	if data[0] != 0xAB {
		t.Fatal("growing the region moved or corrupted an existing pointer's payload")
	}
}
