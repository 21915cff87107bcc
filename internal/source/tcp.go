package source

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/poll"
)

// TCP receives frames from a device over a TCP connection.
type TCP struct {
	addr string
	opts Options
	fc   atomic.Pointer[framedConn] // nil while closed; Close may race a pending Receive
}

// NewTCP creates a TCP source for addr (host:port). Call Open before use.
func NewTCP(addr string, opts Options) *TCP {
	return &TCP{addr: addr, opts: opts.withDefaults()}
}

// Open dials the device.
func (s *TCP) Open(ctx context.Context) error {
	if s.fc.Load() != nil {
		return fmt.Errorf("tcp source %s already open", s.addr)
	}
	d := net.Dialer{Timeout: s.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w: %w", s.addr, core.ErrConnection, err)
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("dial %s: %w: unexpected connection type %T", s.addr, core.ErrConnection, conn)
	}
	if !s.fc.CompareAndSwap(nil, newFramedConn(tc, tc, s.opts)) {
		tc.Close()
		return fmt.Errorf("tcp source %s already open", s.addr)
	}
	return nil
}

// Close closes the connection. Safe to call more than once.
func (s *TCP) Close() error {
	fc := s.fc.Swap(nil)
	if fc == nil {
		return nil
	}
	return fc.conn.Close()
}

// Receive blocks until one full frame has arrived.
func (s *TCP) Receive() (*core.Packet, error) {
	fc := s.fc.Load()
	if fc == nil {
		return nil, core.ErrTransportClosed
	}
	return fc.receive()
}

// Handle returns the pollable transport, nil before Open.
func (s *TCP) Handle() poll.Handle {
	fc := s.fc.Load()
	if fc == nil {
		return nil
	}
	return fc.handle()
}

// Addr returns the configured device address.
func (s *TCP) Addr() string { return s.addr }
