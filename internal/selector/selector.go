// Package selector maps a packet history and a selection criterion to one packet.
//
// Selection is pure: it never mutates the history and carries no cursor.
// Duplicate suppression for the latest policy belongs to the caller.
package selector

import (
	"fmt"

	"firestige.xyz/framestream/internal/core"
)

// History is a read-only view of a bounded packet history.
// Retained sequences must be exactly [Newest()-Len()+1, Newest()].
type History interface {
	Newest() uint64
	Len() int
	Cap() int
	At(offset int) *core.Packet
}

// Criterion describes which packet to select. Build one per tick.
type Criterion struct {
	Policy core.Policy
	Target uint64 // timestamp for nearest, sequence for buffered
}

// Latest selects the newest packet.
func Latest() Criterion { return Criterion{Policy: core.PolicyLatest} }

// Nearest selects the packet whose timestamp is closest to ts.
func Nearest(ts uint64) Criterion { return Criterion{Policy: core.PolicyNearest, Target: ts} }

// Exact selects the packet with the given sequence.
func Exact(seq uint64) Criterion { return Criterion{Policy: core.PolicyBuffered, Target: seq} }

func (c Criterion) String() string {
	if c.Policy == core.PolicyLatest {
		return string(c.Policy)
	}
	return fmt.Sprintf("%s(%d)", c.Policy, c.Target)
}

// Result is the outcome of a selection.
type Result struct {
	Status   core.Status
	Sequence uint64
	Packet   *core.Packet
}

// Found reports whether a packet was selected.
func (r Result) Found() bool { return r.Status == core.StatusFound }

// NotAvailable is the transient empty result.
var NotAvailable = Result{Status: core.StatusNotAvailable}

// Select evaluates c against h.
func Select(h History, c Criterion) Result {
	switch c.Policy {
	case core.PolicyLatest:
		return latest(h)
	case core.PolicyNearest:
		return nearest(h, c.Target)
	case core.PolicyBuffered:
		return exact(h, c.Target)
	default:
		return NotAvailable
	}
}

func latest(h History) Result {
	if h.Len() == 0 {
		return NotAvailable
	}
	return found(h, 0)
}

// nearest scans oldest to newest; on equal distance the later packet wins.
func nearest(h History, ts uint64) Result {
	n := h.Len()
	if n == 0 {
		return NotAvailable
	}
	best := -1
	var bestDist uint64
	for off := n - 1; off >= 0; off-- {
		p := h.At(off)
		if p == nil {
			continue
		}
		d := distance(p.Timestamp, ts)
		if best < 0 || d <= bestDist {
			best, bestDist = off, d
		}
	}
	if best < 0 {
		return NotAvailable
	}
	return found(h, best)
}

func exact(h History, seq uint64) Result {
	newest := h.Newest()
	if seq > newest {
		return NotAvailable
	}
	// seq <= newest here, so the subtraction cannot wrap.
	off := newest - seq
	if off >= uint64(h.Len()) {
		return Result{Status: core.StatusEvicted}
	}
	return found(h, int(off))
}

func found(h History, off int) Result {
	p := h.At(off)
	if p == nil {
		return NotAvailable
	}
	return Result{Status: core.StatusFound, Sequence: p.Sequence, Packet: p}
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Window restricts h to its n most recent packets. n < 1 means no restriction.
func Window(h History, n int) History {
	if n < 1 {
		return h
	}
	return window{h: h, n: n}
}

type window struct {
	h History
	n int
}

func (w window) Newest() uint64 { return w.h.Newest() }
func (w window) Cap() int       { return min(w.h.Cap(), w.n) }

func (w window) Len() int { return min(w.h.Len(), w.n) }

func (w window) At(offset int) *core.Packet {
	if offset >= w.n {
		return nil
	}
	return w.h.At(offset)
}
