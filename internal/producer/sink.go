package producer

import (
	"sync"

	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/selector"
)

// Sink is one reader's view of the shared history with its own cursor.
// Sinks never block the producer or each other beyond the read lock.
type Sink struct {
	p          *Producer
	capacity   int
	attachedAt uint64

	mu       sync.Mutex
	last     uint64
	detached bool
}

// Latest returns the newest packet if it is newer than the last one this sink delivered.
func (s *Sink) Latest() selector.Result { return s.Select(selector.Latest()) }

// Nearest returns the packet with the timestamp closest to ts.
func (s *Sink) Nearest(ts uint64) selector.Result { return s.Select(selector.Nearest(ts)) }

// Buffered returns the packet with sequence seq, or Evicted / NotAvailable.
func (s *Sink) Buffered(seq uint64) selector.Result { return s.Select(selector.Exact(seq)) }

// Select evaluates c against the shared history restricted to the sink window.
func (s *Sink) Select(c selector.Criterion) selector.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return selector.NotAvailable
	}

	s.p.mu.RLock()
	if s.p.lost != nil {
		s.p.mu.RUnlock()
		return selector.Result{Status: core.StatusSourceLost}
	}
	res := selector.Select(selector.Window(s.p.ring, s.capacity), c)
	s.p.mu.RUnlock()

	if !res.Found() {
		return res
	}
	if c.Policy == core.PolicyLatest && res.Sequence <= s.last {
		return selector.NotAvailable
	}
	if res.Sequence > s.last {
		s.last = res.Sequence
	}
	return res
}

// Detach releases the sink. Safe to call repeatedly and after the producer stopped.
func (s *Sink) Detach() {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	s.detached = true
	s.mu.Unlock()
	s.p.detach(s)
}

// Last returns the highest sequence this sink has delivered.
func (s *Sink) Last() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// AttachedAt returns the newest sequence published when the sink attached.
func (s *Sink) AttachedAt() uint64 { return s.attachedAt }

// Capacity returns how far back the sink may look.
func (s *Sink) Capacity() int { return s.capacity }
