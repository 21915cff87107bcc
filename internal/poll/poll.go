// Package poll answers "has a new packet started arriving" without blocking.
//
// It is the guard in front of a blocking full-packet receive: once the first
// byte of a packet is readable the receive may block until the rest arrives,
// but it must never block waiting for a packet to start.
package poll

import (
	"fmt"
	"syscall"

	"firestige.xyz/framestream/internal/core"
)

// Handle is the transport handle of a packet source.
// *net.TCPConn, *net.UnixConn and *os.File all satisfy it.
type Handle interface {
	SyscallConn() (syscall.RawConn, error)
}

// Buffered is implemented by handles that keep read-ahead bytes in user
// space (e.g. behind a bufio.Reader). Those bytes are invisible to the
// kernel, so they must be checked before polling the descriptor.
type Buffered interface {
	Buffered() int
}

// HasPendingData reports whether h has at least one readable byte right now.
// It never waits. A nil, closed or invalid handle yields core.ErrTransportClosed.
func HasPendingData(h Handle) (bool, error) {
	if h == nil {
		return false, fmt.Errorf("nil handle: %w", core.ErrTransportClosed)
	}
	if b, ok := h.(Buffered); ok && b.Buffered() > 0 {
		return true, nil
	}

	rc, err := h.SyscallConn()
	if err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrTransportClosed, err)
	}

	var (
		pending bool
		perr    error
	)
	if err := rc.Control(func(fd uintptr) {
		pending, perr = pollFD(int(fd))
	}); err != nil {
		// Control fails once the descriptor has been closed.
		return false, fmt.Errorf("%w: %v", core.ErrTransportClosed, err)
	}
	if perr != nil {
		return false, perr
	}
	return pending, nil
}
