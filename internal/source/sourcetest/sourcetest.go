// Package sourcetest provides a pipe-backed packet source for tests.
package sourcetest

import (
	"bufio"
	"context"
	"os"
	"sync"
	"testing"

	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/poll"
	"firestige.xyz/framestream/internal/source"
)

// Source is a source.Source whose device side is driven by the test.
// Frames written with Send become readable on the pollable pipe.
type Source struct {
	OpenErr error

	r  *os.File
	w  *os.File
	br *bufio.Reader

	mu       sync.Mutex
	opened   bool
	closed   bool
	receives int
}

var _ source.Source = (*Source)(nil)

// New creates a source and closes both pipe ends when the test ends.
func New(tb testing.TB) *Source {
	tb.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		tb.Fatalf("os.Pipe: %v", err)
	}
	tb.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return &Source{r: r, w: w, br: bufio.NewReader(r)}
}

// Send writes one frame per timestamp.
func (s *Source) Send(tb testing.TB, timestamps ...uint64) {
	tb.Helper()
	for _, ts := range timestamps {
		p := &core.Packet{Timestamp: ts, Payload: []byte{byte(ts), byte(ts >> 8)}}
		if err := source.WriteFrame(s.w, p); err != nil {
			tb.Fatalf("WriteFrame: %v", err)
		}
	}
}

// SendPartial writes only the first n bytes of a frame, simulating a packet
// whose remaining chunks have not arrived yet.
func (s *Source) SendPartial(tb testing.TB, ts uint64, n int) []byte {
	tb.Helper()
	var buf bytesBuffer
	if err := source.WriteFrame(&buf, &core.Packet{Timestamp: ts, Payload: []byte{1, 2, 3, 4}}); err != nil {
		tb.Fatalf("WriteFrame: %v", err)
	}
	if _, err := s.w.Write(buf[:n]); err != nil {
		tb.Fatalf("write: %v", err)
	}
	return buf[n:]
}

// Write writes raw bytes to the device side.
func (s *Source) Write(tb testing.TB, b []byte) {
	tb.Helper()
	if _, err := s.w.Write(b); err != nil {
		tb.Fatalf("write: %v", err)
	}
}

// Hangup closes the device side; the next receive fails with EOF.
func (s *Source) Hangup() { s.w.Close() }

func (s *Source) Open(context.Context) error {
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.r.Close()
}

func (s *Source) Receive() (*core.Packet, error) {
	p, err := source.ReadFrame(s.br, false, 0)
	if err == nil {
		s.mu.Lock()
		s.receives++
		s.mu.Unlock()
	}
	return p, err
}

func (s *Source) Handle() poll.Handle { return handle{File: s.r, br: s.br} }

// Opened reports whether Open succeeded.
func (s *Source) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Receives returns the number of completed receives.
func (s *Source) Receives() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receives
}

type handle struct {
	*os.File
	br *bufio.Reader
}

func (h handle) Buffered() int { return h.br.Buffered() }

type bytesBuffer []byte

func (b *bytesBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
