// Package producer implements async mode: one goroutine owns the packet
// source and publishes into a shared ring; any number of sinks read from it
// with independent cursors.
//
// Locking: the worker holds the write lock only while appending one packet,
// never while receiving. Sinks read under the read lock, so an append is
// invisible until it is complete. Attach and Detach take the write lock and
// therefore never interleave with an append.
package producer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/log"
	"firestige.xyz/framestream/internal/ring"
	"firestige.xyz/framestream/internal/source"
)

// Config contains producer configuration.
type Config struct {
	Name     string // used in logs
	Capacity int    // shared history capacity
}

// Producer drains a source on a background goroutine.
type Producer struct {
	name string

	mu      sync.RWMutex
	ring    *ring.Ring
	sinks   map[*Sink]struct{}
	src     source.Source
	started bool
	stopped bool
	lost    error

	done     chan struct{}
	release  func() bool // deregisters the Start ctx callback
	received atomic.Uint64
	evicted  atomic.Uint64
}

// New creates an unconfigured producer.
func New(cfg Config) *Producer {
	return &Producer{
		name:  cfg.Name,
		ring:  ring.New(cfg.Capacity),
		sinks: make(map[*Sink]struct{}),
		done:  make(chan struct{}),
	}
}

// Configure hands the producer exclusive ownership of an opened source.
func (p *Producer) Configure(src source.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return core.ErrAlreadyStarted
	}
	p.src = src
	return nil
}

// Start launches the worker. Cancelling ctx has the same effect as Stop.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src == nil {
		return core.ErrNotConfigured
	}
	if p.started {
		return core.ErrAlreadyStarted
	}
	p.started = true

	go p.run()
	p.release = context.AfterFunc(ctx, p.Stop)

	log.GetLogger().WithField("stream", p.name).
		Debugf("producer started, capacity %d", p.ring.Cap())
	return nil
}

// run receives outside the lock and publishes under it. A receive that
// completes after Stop is discarded, so nothing is appended once Stop returns.
func (p *Producer) run() {
	defer close(p.done)
	logger := log.GetLogger().WithField("stream", p.name)

	for {
		pkt, err := p.src.Receive()

		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			logger.Debug("producer stopped")
			return
		}
		if err != nil {
			p.lost = fmt.Errorf("%w: %w", core.ErrSourceLost, err)
			p.mu.Unlock()
			logger.WithError(err).Error("packet source lost, producer terminated")
			return
		}
		if p.ring.Append(pkt) {
			p.evicted.Add(1)
		}
		p.mu.Unlock()
		p.received.Add(1)
	}
}

// Stop asks the worker to exit. It does not interrupt a receive in flight;
// close the source (or use Close) to unblock it. Idempotent.
func (p *Producer) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// Wait blocks until the worker has exited. It returns immediately if the
// producer was never started.
func (p *Producer) Wait() {
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if started {
		<-p.done
	}
}

// Close stops the worker, closes the source to unblock it and waits for exit.
func (p *Producer) Close() error {
	p.Stop()
	p.mu.Lock()
	src, release := p.src, p.release
	p.release = nil
	p.mu.Unlock()
	if release != nil {
		release()
	}
	var err error
	if src != nil {
		err = src.Close()
	}
	p.Wait()
	return err
}

// Done is closed when the worker exits.
func (p *Producer) Done() <-chan struct{} { return p.done }

// Err returns the terminal error wrapping core.ErrSourceLost, or nil.
func (p *Producer) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lost
}

// Attach registers a new sink looking back at most capacity packets
// (clamped to the producer capacity). Taking the write lock is the
// handshake: the sink sees a fully published state from its first read.
func (p *Producer) Attach(capacity int) (*Sink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil, core.ErrStopped
	}
	if capacity < 1 || capacity > p.ring.Cap() {
		capacity = p.ring.Cap()
	}
	s := &Sink{
		p:          p,
		capacity:   capacity,
		attachedAt: p.ring.Newest(),
	}
	p.sinks[s] = struct{}{}
	return s, nil
}

func (p *Producer) detach(s *Sink) {
	p.mu.Lock()
	delete(p.sinks, s)
	p.mu.Unlock()
}

// Sinks returns the number of attached sinks.
func (p *Producer) Sinks() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sinks)
}

// Received returns the number of packets published.
func (p *Producer) Received() uint64 { return p.received.Load() }

// Evicted returns the number of packets pushed out of the shared history.
func (p *Producer) Evicted() uint64 { return p.evicted.Load() }

// Newest returns the newest published sequence.
func (p *Producer) Newest() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ring.Newest()
}

// Len returns the number of packets in the shared history.
func (p *Producer) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ring.Len()
}
