package logging

import (
	"sync"
)

// RingBuffer keeps the most recent log lines in memory so the status
// CLI can show them without reading the log file. It implements
// io.Writer and is safe for concurrent use.
type RingBuffer struct {
	mu   sync.RWMutex
	buf  []string
	cap  int
	head int
	size int
}

// NewRingBuffer creates a ring buffer holding up to capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &RingBuffer{
		buf: make([]string, capacity),
		cap: capacity,
	}
}

// Write stores one serialized log event. zerolog calls Write once per
// event, so each call maps to one buffered line.
func (r *RingBuffer) Write(p []byte) (int, error) {
	line := string(p)
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}

	r.mu.Lock()
	r.buf[r.head] = line
	r.head = (r.head + 1) % r.cap
	if r.size < r.cap {
		r.size++
	}
	r.mu.Unlock()

	return len(p), nil
}

// Recent returns up to n of the most recent lines, oldest first.
func (r *RingBuffer) Recent(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]string, 0, n)
	for i := r.size - n; i < r.size; i++ {
		idx := (r.head - r.size + i + r.cap) % r.cap
		out = append(out, r.buf[idx])
	}
	return out
}

// Len returns the number of buffered lines.
func (r *RingBuffer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
