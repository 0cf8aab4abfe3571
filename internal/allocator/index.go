package allocator

// addressIndexCapacity bounds the node pool backing the address index
// (spec: 1024 entries). Exhausting it fails the enclosing allocate.
const addressIndexCapacity = 1024

const nilNode = -1

// indexNode is one binary-search-tree node, keyed by payload address.
// Children are pool slot indices rather than pointers so the whole pool can
// live in one pre-sized Go slice, allocated once via make() — bypassing the
// chunk heap entirely, so the pool never appears in the chunk list (see
// SPEC_FULL.md §4.4).
type indexNode struct {
	addr        uintptr
	size        uintptr
	left, right int32
}

// addressIndex is an ordered map from payload address to chunk size,
// backed by a fixed-capacity node pool with a bitmap tracking occupancy.
// Grounded on original_source/includes/bst_node.h's chunk_ptr/chunk_size
// node shape; insert/lookup/remove are the conventional BST algorithms
// applied over pool slot indices instead of raw pointers.
type addressIndex struct {
	nodes    []indexNode
	occupied []uint64 // bitmap, addressIndexCapacity bits
	root     int32
	count    int
}

func newAddressIndex() *addressIndex {
	words := (addressIndexCapacity + 63) / 64

	return &addressIndex{
		nodes:    make([]indexNode, addressIndexCapacity),
		occupied: make([]uint64, words),
		root:     nilNode,
	}
}

func (ix *addressIndex) bitSet(i int) bool {
	return ix.occupied[i/64]&(1<<uint(i%64)) != 0
}

func (ix *addressIndex) setBit(i int) {
	ix.occupied[i/64] |= 1 << uint(i%64)
}

func (ix *addressIndex) clearBit(i int) {
	ix.occupied[i/64] &^= 1 << uint(i%64)
}

// allocSlot finds a free pool slot, or -1 if the pool is exhausted.
func (ix *addressIndex) allocSlot() int32 {
	for i := 0; i < addressIndexCapacity; i++ {
		if !ix.bitSet(i) {
			ix.setBit(i)

			return int32(i)
		}
	}

	return nilNode
}

// insert adds (addr, size) to the index. Returns false if the pool is
// exhausted; the caller must then treat the enclosing allocate as failed
// (spec.md §4.4).
func (ix *addressIndex) insert(addr, size uintptr) bool {
	slot := ix.allocSlot()
	if slot == nilNode {
		return false
	}

	ix.nodes[slot] = indexNode{addr: addr, size: size, left: nilNode, right: nilNode}
	ix.count++

	if ix.root == nilNode {
		ix.root = slot

		return true
	}

	cur := ix.root
	for {
		switch {
		case addr < ix.nodes[cur].addr:
			if ix.nodes[cur].left == nilNode {
				ix.nodes[cur].left = slot

				return true
			}

			cur = ix.nodes[cur].left
		default: // addr >= cur.addr; duplicates shouldn't occur but fall right
			if ix.nodes[cur].right == nilNode {
				ix.nodes[cur].right = slot

				return true
			}

			cur = ix.nodes[cur].right
		}
	}
}

// lookup returns the size stored for addr, if present.
func (ix *addressIndex) lookup(addr uintptr) (uintptr, bool) {
	cur := ix.root
	for cur != nilNode {
		n := &ix.nodes[cur]

		switch {
		case addr == n.addr:
			return n.size, true
		case addr < n.addr:
			cur = n.left
		default:
			cur = n.right
		}
	}

	return 0, false
}

// remove deletes the entry for addr, if present, returning whether it was
// found.
func (ix *addressIndex) remove(addr uintptr) bool {
	var removed bool

	ix.root, removed = ix.removeFrom(ix.root, addr)

	return removed
}

func (ix *addressIndex) removeFrom(node int32, addr uintptr) (int32, bool) {
	if node == nilNode {
		return nilNode, false
	}

	n := &ix.nodes[node]

	switch {
	case addr < n.addr:
		newLeft, ok := ix.removeFrom(n.left, addr)
		n.left = newLeft

		return node, ok
	case addr > n.addr:
		newRight, ok := ix.removeFrom(n.right, addr)
		n.right = newRight

		return node, ok
	}

	// Found the node to remove.
	switch {
	case n.left == nilNode && n.right == nilNode:
		ix.freeSlot(node)

		return nilNode, true
	case n.left == nilNode:
		right := n.right
		ix.freeSlot(node)

		return right, true
	case n.right == nilNode:
		left := n.left
		ix.freeSlot(node)

		return left, true
	default:
		// Two children: replace with the in-order successor (minimum of
		// the right subtree), then delete that successor from the right
		// subtree.
		succ := ix.findMin(n.right)
		n.addr = ix.nodes[succ].addr
		n.size = ix.nodes[succ].size

		newRight, _ := ix.removeFrom(n.right, ix.nodes[succ].addr)
		n.right = newRight

		return node, true
	}
}

func (ix *addressIndex) findMin(node int32) int32 {
	for ix.nodes[node].left != nilNode {
		node = ix.nodes[node].left
	}

	return node
}

func (ix *addressIndex) freeSlot(i int32) {
	ix.clearBit(int(i))
	ix.count--
}

// size reports the number of live entries.
func (ix *addressIndex) size() int { return ix.count }
