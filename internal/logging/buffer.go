package logging

import (
	"sync"
	"time"
)

// Entry is one log record kept in the history buffer.
type Entry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries, overwriting the oldest.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{entries: make([]Entry, size)}
}

// Write appends e.
func (rb *RingBuffer) Write(e Entry) {
	rb.mu.Lock()
	rb.entries[rb.next] = e
	rb.next++
	if rb.next == len(rb.entries) {
		rb.next = 0
		rb.full = true
	}
	rb.mu.Unlock()
}

// Len returns how many entries are held.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.entries)
	}
	return rb.next
}

// Recent returns up to limit of the newest entries matching keep, oldest
// first. A limit of zero or less means no limit; a nil keep matches all.
func (rb *RingBuffer) Recent(limit int, keep func(Entry) bool) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	ordered := make([]Entry, 0, len(rb.entries))
	if rb.full {
		ordered = append(ordered, rb.entries[rb.next:]...)
	}
	ordered = append(ordered, rb.entries[:rb.next]...)

	out := make([]Entry, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		if keep != nil && !keep(ordered[i]) {
			continue
		}
		out = append(out, ordered[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
