package poll

import (
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"firestige.xyz/framestream/internal/core"
)

func TestHasPendingData_Pipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	pending, err := HasPendingData(r)
	require.NoError(t, err)
	assert.False(t, pending, "empty pipe must not report data")

	_, err = w.Write([]byte{0x01})
	require.NoError(t, err)

	pending, err = HasPendingData(r)
	require.NoError(t, err)
	assert.True(t, pending)

	buf := make([]byte, 1)
	_, err = r.Read(buf)
	require.NoError(t, err)

	pending, err = HasPendingData(r)
	require.NoError(t, err)
	assert.False(t, pending, "drained pipe must not report data")
}

func TestHasPendingData_NeverBlocks(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		_, err := HasPendingData(r)
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestHasPendingData_PeerClosedIsReadable(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, w.Close())

	// The hang-up must be visible so the next receive reports EOF.
	pending, err := HasPendingData(r)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestHasPendingData_ClosedHandle(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, r.Close())

	_, err = HasPendingData(r)
	assert.ErrorIs(t, err, core.ErrTransportClosed)
}

func TestHasPendingData_NilHandle(t *testing.T) {
	_, err := HasPendingData(nil)
	assert.ErrorIs(t, err, core.ErrTransportClosed)
}

type bufferedHandle struct {
	Handle
	n int
}

func (b bufferedHandle) Buffered() int { return b.n }

func TestHasPendingData_UserSpaceBuffer(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	pending, err := HasPendingData(bufferedHandle{Handle: r, n: 3})
	require.NoError(t, err)
	assert.True(t, pending, "read-ahead bytes count as pending")

	pending, err = HasPendingData(bufferedHandle{Handle: r, n: 0})
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestHasPendingData_TCP(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	server := <-accepted
	defer server.Close()

	h := client.(syscall.Conn)
	pending, err := HasPendingData(h)
	require.NoError(t, err)
	assert.False(t, pending)

	_, err = server.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p, err := HasPendingData(h)
		return err == nil && p
	}, time.Second, 5*time.Millisecond)
}
