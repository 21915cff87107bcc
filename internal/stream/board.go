package stream

import (
	"sync"

	"firestige.xyz/framestream/internal/metadata"
)

// Reference is the frame a dependent stream aligns to: nearest pickers use
// its timestamp, buffered pickers its sequence.
type Reference interface {
	Timestamp() uint64
	Sequence() uint64
}

// Mark is a fixed reference point.
type Mark struct {
	TS  uint64
	Seq uint64
}

func (m Mark) Timestamp() uint64 { return m.TS }
func (m Mark) Sequence() uint64  { return m.Seq }

// Board holds the last frame delivered by every stream of a session so that
// dependent streams can pick frames relative to it.
type Board struct {
	mu   sync.RWMutex
	last map[string]Mark
}

func NewBoard() *Board {
	return &Board{last: make(map[string]Mark)}
}

// Publish records rec as the newest delivery of its stream.
func (b *Board) Publish(rec metadata.Record) {
	b.mu.Lock()
	b.last[rec.Stream] = Mark{TS: rec.Timestamp, Seq: rec.Framestamp}
	b.mu.Unlock()
}

// Reference returns the last delivery of stream, or nil before the first one.
func (b *Board) Reference(stream string) Reference {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.last[stream]
	if !ok {
		return nil
	}
	return m
}
