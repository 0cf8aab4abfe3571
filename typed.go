package heapvm

import "unsafe"

// New allocates space for a T, copies value into it, and returns a typed
// pointer. This is the generic-function rendering of the original C++
// source's placement-new convenience templates
// (original_source/includes/allocator.h's allocate<T> helper): Go has no
// placement new, but a type parameter gives the same "know the size and the
// type at the call site" ergonomics.
//
// New does not register a root: like the original's stack-scanned roots,
// whether an allocation survives a collection is determined entirely by
// whether something reachable from the registered root set still points at
// it (spec.md §4.2/§4.3). Callers that need the result to outlive a
// collection on its own — rather than merely being reachable through
// another rooted object's fields — must register it explicitly via
// h.RegisterRoot or h.AssignRoot.
func New[T any](h *Handle, value T) (*T, error) {
	var zero T

	size := unsafe.Sizeof(zero)

	ptr, err := h.Allocate(size, nil)
	if err != nil {
		return nil, err
	}

	typed := (*T)(ptr)
	*typed = value

	return typed, nil
}

// Destroy zeroes *ptr (dropping any references it held, so a stale root
// doesn't keep an unrelated object alive past this point) and deallocates
// it. A nil ptr is a no-op.
func Destroy[T any](h *Handle, ptr *T) {
	if ptr == nil {
		return
	}

	var zero T
	*ptr = zero

	h.Deallocate(unsafe.Pointer(ptr))
}
