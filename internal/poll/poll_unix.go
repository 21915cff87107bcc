//go:build unix

package poll

import (
	"fmt"

	"golang.org/x/sys/unix"

	"firestige.xyz/framestream/internal/core"
)

// pollFD polls a single descriptor for readability with a zero timeout.
// POLLHUP and POLLERR count as readable so the following receive surfaces
// the transport error instead of the poller hiding it.
func pollFD(fd int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: poll: %v", core.ErrTransportClosed, err)
		}
		if n == 0 {
			return false, nil
		}
		rev := fds[0].Revents
		if rev&unix.POLLNVAL != 0 {
			return false, fmt.Errorf("%w: invalid descriptor %d", core.ErrTransportClosed, fd)
		}
		return rev&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
	}
}
