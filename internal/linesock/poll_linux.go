//go:build linux

package linesock

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pollReadable waits up to timeout for the socket to become readable. A
// hang-up or error condition counts as readable so the next receive can
// report it.
func pollReadable(rc syscall.RawConn, timeout time.Duration) (bool, error) {
	ms := int(timeout / time.Millisecond)
	if timeout < 0 {
		ms = -1
	}

	var ready bool
	var perr error
	err := rc.Control(func(fd uintptr) {
		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			n, err := unix.Poll(pfd, ms)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				perr = err
				return
			}
			ready = n > 0 && pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
			return
		}
	})
	if err != nil {
		return false, err
	}
	return ready, perr
}
