// Package replication implements CoolCache's leader→follower replication
// protocol: the leader's replication backlog and replica registry, the
// PSYNC/REPLCONF handshake, and the follower's ingest loop.
package replication

import "sync"

// Backlog is a bounded ring buffer of recently replicated bytes, letting a
// reattaching follower resume with PSYNC <replid> <offset> instead of a
// full resync, as long as its requested offset still falls inside the
// window.
type Backlog struct {
	mu          sync.Mutex
	data        []byte
	startOffset uint64 // offset of data[0]; 0 bytes retained means data is empty
	capacity    int
}

// NewBacklog constructs a backlog bounded to capacity bytes.
func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = 1 << 20 // 1 MiB default
	}
	return &Backlog{capacity: capacity}
}

// Write appends p, evicting from the front once the buffer exceeds its
// configured capacity.
func (b *Backlog) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if len(b.data) > b.capacity {
		trim := len(b.data) - b.capacity
		b.data = b.data[trim:]
		b.startOffset += uint64(trim)
	}
}

// FetchFrom returns a copy of every retained byte starting at offset. ok is
// false if offset has already fallen out of the retained window or lies in
// the future.
func (b *Backlog) FetchFrom(offset uint64) (data []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset < b.startOffset {
		return nil, false
	}
	idx := offset - b.startOffset
	if idx > uint64(len(b.data)) {
		return nil, false
	}
	out := make([]byte, len(b.data)-int(idx))
	copy(out, b.data[idx:])
	return out, true
}

// Window reports the half-open range [start, end) of offsets currently
// retained, end being the offset one past the last retained byte.
func (b *Backlog) Window() (start, end uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startOffset, b.startOffset + uint64(len(b.data))
}
