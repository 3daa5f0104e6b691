package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Tracer provides generation tracing for debugging
type Tracer struct {
	enabled bool
	filters []string
	writer  io.Writer
	mu      sync.Mutex
}

// Global tracer instance
var globalTracer *Tracer

// Init initializes the global tracer
func Init(enabled bool, filters []string, writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	globalTracer = &Tracer{
		enabled: enabled,
		filters: filters,
		writer:  writer,
	}
}

// IsEnabled returns whether tracing is enabled
func IsEnabled() bool {
	if globalTracer == nil {
		return false
	}
	return globalTracer.enabled
}

// matchesFilter checks if a node label matches any of the filter patterns
func (t *Tracer) matchesFilter(label string) bool {
	if len(t.filters) == 0 {
		return true // No filters = trace everything
	}

	for _, pattern := range t.filters {
		if matched, _ := filepath.Match(pattern, label); matched {
			return true
		}
	}
	return false
}

// Node logs the start of code generation for one template node
func (t *Tracer) Node(label string, pos string, genLine int) {
	if !t.enabled || !t.matchesFilter(label) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.writer, "[TRACE] GEN %s at %s => line %d\n", label, pos, genLine)
}

// Tag logs a custom tag invocation being generated
func (t *Tracer) Tag(qname string, pos string, pooled bool, split bool) {
	if !t.enabled || !t.matchesFilter(qname) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.writer, "[TRACE] TAG %s at %s pooled=%v split=%v\n", qname, pos, pooled, split)
}

// Fragment logs a deferred body section being opened
func (t *Tracer) Fragment(id int, pos string) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.writer, "[TRACE] FRAGMENT %d at %s\n", id, pos)
}

// Node logs via the global tracer
func Node(label string, pos string, genLine int) {
	if globalTracer != nil {
		globalTracer.Node(label, pos, genLine)
	}
}

// Tag logs via the global tracer
func Tag(qname string, pos string, pooled bool, split bool) {
	if globalTracer != nil {
		globalTracer.Tag(qname, pos, pooled, split)
	}
}

// Fragment logs via the global tracer
func Fragment(id int, pos string) {
	if globalTracer != nil {
		globalTracer.Fragment(id, pos)
	}
}
