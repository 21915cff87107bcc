// Package ring implements the bounded packet history shared by both stream modes.
package ring

import "firestige.xyz/framestream/internal/core"

// Ring is a fixed-capacity circular history of the most recent packets.
//
// Slots are indexed by sequence mod capacity, so the retained sequences are
// always the contiguous range [Newest-Len+1, Newest]. Ring does no locking;
// the owner decides the concurrency discipline.
type Ring struct {
	slots  []*core.Packet
	newest uint64
	size   int
}

// New creates a ring holding at most capacity packets (minimum 1).
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{slots: make([]*core.Packet, capacity)}
}

// Append assigns the next sequence number to p and stores it, overwriting the
// oldest packet when full. It reports whether a packet was evicted.
func (r *Ring) Append(p *core.Packet) bool {
	seq := r.newest + 1
	p.Sequence = seq
	r.slots[seq%uint64(len(r.slots))] = p
	r.newest = seq
	if r.size < len(r.slots) {
		r.size++
		return false
	}
	return true
}

// Newest returns the sequence of the most recent packet, 0 if none arrived yet.
func (r *Ring) Newest() uint64 { return r.newest }

// Oldest returns the sequence of the oldest retained packet, 0 if empty.
func (r *Ring) Oldest() uint64 {
	if r.size == 0 {
		return 0
	}
	return r.newest - uint64(r.size) + 1
}

// Len returns the number of retained packets.
func (r *Ring) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.slots) }

// At returns the packet offset positions behind the newest one (0 = newest),
// or nil when offset is outside the retained range.
func (r *Ring) At(offset int) *core.Packet {
	if offset < 0 || offset >= r.size {
		return nil
	}
	return r.slots[(r.newest-uint64(offset))%uint64(len(r.slots))]
}
