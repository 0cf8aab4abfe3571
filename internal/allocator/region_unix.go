//go:build linux

package allocator

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapHeap acquires the heap region via anonymous mmap and grows it by
// mapping immediately past the current end with MAP_FIXED_NOREPLACE, the
// same "must stay contiguous or fail loudly" contract spec.md §4.1 demands
// of sbrk-style growth. Grounded on the teacher's raw-syscall-over-x/sys
// idiom in internal/runtime/asyncio/zerocopy_unix_splice.go.
type mmapHeap struct{}

func newOSHeap() osHeap { return mmapHeap{} }

func (mmapHeap) acquire(size uintptr) (unsafe.Pointer, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return unsafe.Pointer(&data[0]), nil
}

// pageSize reports the system page size: both wantAddr below and extra
// (rounded by the caller before this is invoked) must land on a page
// boundary for MAP_FIXED_NOREPLACE to be accepted rather than EINVAL.
func (mmapHeap) pageSize() uintptr { return uintptr(unix.Getpagesize()) }

func (mmapHeap) extend(base unsafe.Pointer, currentSize, extra uintptr) (uintptr, error) {
	wantAddr := uintptr(base) + currentSize

	got, _, errno := unix.Syscall6(unix.SYS_MMAP, wantAddr, extra,
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE),
		^uintptr(0), 0)
	if errno != 0 {
		return 0, fmt.Errorf("mmap(MAP_FIXED_NOREPLACE) at %#x: %w", wantAddr, errno)
	}

	if got != wantAddr {
		// The kernel placed the mapping somewhere else: the address range
		// right after the heap was not free. Undo it and fail loudly
		// rather than let the chunk list believe it owns non-contiguous
		// memory (spec.md §4.1).
		_, _, _ = unix.Syscall(unix.SYS_MUNMAP, got, extra, 0)

		return 0, fmt.Errorf("heap growth would not be contiguous: wanted %#x, got %#x", wantAddr, got)
	}

	return extra, nil
}
