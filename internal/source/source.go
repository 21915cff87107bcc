// Package source provides packet sources: opened connections that yield one
// complete sensor packet per receive.
package source

import (
	"bufio"
	"context"
	"io"
	"syscall"
	"time"

	"firestige.xyz/framestream/internal/config"
	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/poll"
)

// Source is a connection to a remote sensor stream.
type Source interface {
	// Open establishes the connection. Failures wrap core.ErrConnection.
	Open(ctx context.Context) error
	// Close releases the connection and unblocks a pending Receive.
	Close() error
	// Receive blocks until one complete packet has arrived.
	Receive() (*core.Packet, error)
	// Handle exposes the transport for non-blocking polling.
	Handle() poll.Handle
}

// Options are shared by all framed sources.
type Options struct {
	Pose        bool          // each frame carries a trailing 4x4 pose
	MaxPayload  uint32        // frames announcing a larger payload are rejected
	DialTimeout time.Duration // TCP only
}

const (
	defaultMaxPayload  = 64 << 20
	defaultDialTimeout = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxPayload == 0 {
		o.MaxPayload = defaultMaxPayload
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	return o
}

// framedConn decodes frames from a byte stream backed by a pollable transport.
type framedConn struct {
	conn io.Closer
	sc   syscall.Conn
	r    *bufio.Reader
	opts Options
}

func newFramedConn(rc io.ReadCloser, sc syscall.Conn, opts Options) *framedConn {
	return &framedConn{
		conn: rc,
		sc:   sc,
		r:    bufio.NewReaderSize(rc, 64<<10),
		opts: opts,
	}
}

func (f *framedConn) receive() (*core.Packet, error) {
	return ReadFrame(f.r, f.opts.Pose, f.opts.MaxPayload)
}

func (f *framedConn) handle() poll.Handle {
	return connHandle{sc: f.sc, r: f.r}
}

// connHandle reports bufio read-ahead alongside the kernel descriptor.
type connHandle struct {
	sc syscall.Conn
	r  *bufio.Reader
}

func (h connHandle) SyscallConn() (syscall.RawConn, error) { return h.sc.SyscallConn() }
func (h connHandle) Buffered() int                          { return h.r.Buffered() }

// FromConfig builds the source described by a validated stream config:
// a TCP connection when address is set, otherwise a pcap replay.
func FromConfig(sc config.StreamConfig) Source {
	opts := Options{
		Pose:        sc.Pose,
		MaxPayload:  sc.MaxPayload,
		DialTimeout: sc.DialTimeout,
	}
	if sc.Address != "" {
		return NewTCP(sc.Address, opts)
	}
	return NewReplay(sc.Replay.File, ReplayOptions{
		Options: opts,
		Port:    sc.Replay.Port,
		Speed:   sc.Replay.Speed,
	})
}
