package allocator

import (
	"fmt"
	"os"
)

// logf writes a debug line to stderr when debug mode is enabled, and is a
// no-op otherwise. Grounded on original_source's DEBUG_MODE-gated
// std::ostringstream buffering in allocator.cpp/garbage_collector.cpp
// (out << ...; log_info();), collapsed into a single call since Go's
// fmt.Fprintf needs no separate flush step.
func (a *Allocator) logf(format string, args ...interface{}) {
	if !a.debug {
		return
	}

	fmt.Fprintf(os.Stderr, "[allocator] "+format+"\n", args...)
}
