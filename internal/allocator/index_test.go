package allocator

import "testing"

func TestAddressIndexInsertLookupRemove(t *testing.T) {
	ix := newAddressIndex()

	addrs := []uintptr{100, 50, 150, 25, 75, 125, 175}

	for _, a := range addrs {
		if !ix.insert(a, a*2) {
			t.Fatalf("insert(%d) failed", a)
		}
	}

	if ix.size() != len(addrs) {
		t.Fatalf("size() = %d, want %d", ix.size(), len(addrs))
	}

	for _, a := range addrs {
		size, ok := ix.lookup(a)
		if !ok {
			t.Fatalf("lookup(%d): not found", a)
		}

		if size != a*2 {
			t.Fatalf("lookup(%d) = %d, want %d", a, size, a*2)
		}
	}

	if _, ok := ix.lookup(9999); ok {
		t.Fatal("lookup(9999) should not be found")
	}

	// Remove a leaf (25), then two two-child nodes: 150 (children 125 and
	// 175) and the root 100 (children 50 and 150 in this insertion order).
	if !ix.remove(25) {
		t.Fatal("remove(25) should succeed")
	}

	if !ix.remove(150) {
		t.Fatal("remove(150) should succeed")
	}

	if !ix.remove(100) {
		t.Fatal("remove(100) should succeed")
	}

	if ix.remove(100) {
		t.Fatal("removing 100 twice should fail the second time")
	}

	if ix.size() != len(addrs)-3 {
		t.Fatalf("size() after removals = %d, want %d", ix.size(), len(addrs)-3)
	}

	for _, a := range []uintptr{50, 75, 125, 175} {
		if _, ok := ix.lookup(a); !ok {
			t.Fatalf("lookup(%d) should still be found after unrelated removals", a)
		}
	}
}

func TestAddressIndexExhaustion(t *testing.T) {
	ix := newAddressIndex()

	for i := 0; i < addressIndexCapacity; i++ {
		if !ix.insert(uintptr(i), 1) {
			t.Fatalf("insert(%d) failed before exhaustion", i)
		}
	}

	if ix.insert(uintptr(addressIndexCapacity), 1) {
		t.Fatal("insert should fail once the node pool is exhausted")
	}

	if !ix.remove(0) {
		t.Fatal("remove(0) should succeed")
	}

	if !ix.insert(uintptr(addressIndexCapacity), 1) {
		t.Fatal("insert should succeed again after a slot is freed")
	}
}
