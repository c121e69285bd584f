package gateway

import "sync"

type replayEntry struct {
	Seq  int64
	Data []byte // envelope JSON
}

// ReplayBuffer keeps the last few envelopes of one channel so a client that
// noticed a channel_seq gap can fetch what it missed.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	head    int // index of the oldest entry once full
	size    int
}

// NewReplayBuffer creates a buffer holding at most capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayLength
	}
	return &ReplayBuffer{entries: make([]replayEntry, 0, capacity), size: capacity}
}

// Push appends an envelope, evicting the oldest one when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) < rb.size {
		rb.entries = append(rb.entries, replayEntry{Seq: seq, Data: cp})
		return
	}
	rb.entries[rb.head] = replayEntry{Seq: seq, Data: cp}
	rb.head = (rb.head + 1) % rb.size
}

// Range returns entries with fromSeq <= seq <= toSeq, oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	n := len(rb.entries)
	for i := 0; i < n; i++ {
		e := rb.entries[(rb.head+i)%n]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}
