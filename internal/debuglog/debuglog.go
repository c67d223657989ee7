// Package debuglog captures log output into a bounded buffer of lines so it
// can be shipped to the monitoring server. Capture is switched on by the
// presence of a toggle file.
package debuglog

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// DefaultCapacity is the number of lines kept between flushes.
const DefaultCapacity = 200

// Buffer is an io.Writer that keeps the most recent complete lines.
// Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	head     int // next write position
	count    int
	dropped  int
	partial  strings.Builder
	enabled  func() bool
}

// New creates a Buffer holding up to capacity lines. Writes are ignored
// while enabled returns false; a nil enabled means always on.
func New(capacity int, enabled func() bool) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &Buffer{
		lines:    make([]string, capacity),
		capacity: capacity,
		enabled:  enabled,
	}
}

// FileToggle returns an enable check that is true while path exists.
func FileToggle(path string) func() bool {
	return func() bool {
		if path == "" {
			return false
		}
		_, err := os.Stat(path)
		return err == nil
	}
}

// Write splits p into lines. A trailing fragment is held until its newline arrives.
// Never logs: it sits underneath the log package.
func (b *Buffer) Write(p []byte) (int, error) {
	if !b.enabled() {
		return len(p), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := string(p)
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			b.partial.WriteString(s)
			break
		}
		b.partial.WriteString(s[:i])
		b.push(b.partial.String())
		b.partial.Reset()
		s = s[i+1:]
	}
	return len(p), nil
}

func (b *Buffer) push(line string) {
	if b.count == b.capacity {
		// Overwrite oldest: head is already pointing at it
		b.lines[b.head] = line
		b.head = (b.head + 1) % b.capacity
		b.dropped++
		return
	}
	b.lines[b.head] = line
	b.head = (b.head + 1) % b.capacity
	b.count++
}

// Drain returns the buffered lines oldest first and empties the buffer.
// If lines were dropped since the last drain, a note is prepended.
func (b *Buffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	result := make([]string, 0, b.count+1)
	if b.dropped > 0 {
		result = append(result, fmt.Sprintf("debuglog: buffer full, dropped %d lines", b.dropped))
	}
	// Oldest item is at (head - count) mod capacity
	start := (b.head - b.count + b.capacity) % b.capacity
	for i := 0; i < b.count; i++ {
		result = append(result, b.lines[(start+i)%b.capacity])
	}

	b.count = 0
	b.head = 0
	b.dropped = 0
	return result
}

// Len returns the number of complete lines buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
