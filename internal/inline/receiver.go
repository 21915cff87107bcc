// Package inline implements sync mode: the caller's tick drains the source
// into a ring it owns, with no background goroutine and no locking.
package inline

import (
	"fmt"

	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/poll"
	"firestige.xyz/framestream/internal/ring"
	"firestige.xyz/framestream/internal/selector"
	"firestige.xyz/framestream/internal/source"
)

// Receiver owns an opened source and its bounded history.
// It must only be used from one goroutine.
type Receiver struct {
	src  source.Source
	ring *ring.Ring
	poll func(poll.Handle) (bool, error)

	received uint64
	evicted  uint64
}

// New creates a receiver over an already opened source.
func New(src source.Source, capacity int) *Receiver {
	return &Receiver{
		src:  src,
		ring: ring.New(capacity),
		poll: poll.HasPendingData,
	}
}

// ReceiveAvailable appends every packet that has at least started arriving
// and returns how many were appended. It blocks only to finish a packet whose
// first bytes are already readable, never to wait for a new one.
//
// Any poll or receive failure is fatal for the session and wraps
// core.ErrTransportClosed; packets appended before the failure are kept.
func (r *Receiver) ReceiveAvailable() (int, error) {
	n := 0
	for {
		pending, err := r.poll(r.src.Handle())
		if err != nil {
			return n, err
		}
		if !pending {
			return n, nil
		}
		p, err := r.src.Receive()
		if err != nil {
			return n, fmt.Errorf("%w: receive: %w", core.ErrTransportClosed, err)
		}
		if r.ring.Append(p) {
			r.evicted++
		}
		r.received++
		n++
	}
}

// History exposes the ring for selection.
func (r *Receiver) History() selector.History { return r.ring }

// Select runs c against the receiver's history.
func (r *Receiver) Select(c selector.Criterion) selector.Result {
	return selector.Select(r.ring, c)
}

// Received returns the number of packets appended since creation.
func (r *Receiver) Received() uint64 { return r.received }

// Evicted returns the number of packets pushed out of the history.
func (r *Receiver) Evicted() uint64 { return r.evicted }
