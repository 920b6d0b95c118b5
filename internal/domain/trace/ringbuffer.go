package trace

import "sync"

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 100

// RingBuffer is a concurrent-safe fixed-size ring of trace entries.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// NewRingBuffer creates a ring buffer that holds up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &RingBuffer{entries: make([]Entry, size)}
}

// Add stores an entry, evicting the oldest when full.
func (rb *RingBuffer) Add(e Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = e
	rb.head = (rb.head + 1) % len(rb.entries)
	rb.count = min(rb.count+1, len(rb.entries))
}

// Last returns up to n of the newest entries, oldest first. A non-positive n
// returns everything held.
func (rb *RingBuffer) Last(n int) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	if n == 0 {
		return nil
	}

	size := len(rb.entries)
	out := make([]Entry, n)
	start := (rb.head - n + size) % size
	for i := range n {
		out[i] = rb.entries[(start+i)%size]
	}
	return out
}

// Len returns the number of entries held.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Reset drops every entry.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.entries)
	rb.head, rb.count = 0, 0
}
