package gc

import (
	"fmt"
	"os"
)

// logf writes a debug line to stderr when debug mode is enabled, and is a
// no-op otherwise. Mirrors internal/allocator.Allocator.logf so the two
// halves of the heap produce matching [allocator]/[gc] trace lines when
// debug mode is on (spec.md §9: debug logging is threaded through both).
func (c *Collector) logf(format string, args ...interface{}) {
	if !c.debug {
		return
	}

	fmt.Fprintf(os.Stderr, "[gc] "+format+"\n", args...)
}
