//go:build unix

package sim

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets a restarted simulator rebind its port while old
// connections sit in TIME_WAIT.
func reuseAddr(network, address string, c syscall.RawConn) error {
	return setSockoptInt(c, unix.SO_REUSEADDR)
}

// allowBroadcast permits datagrams to broadcast destinations.
func allowBroadcast(network, address string, c syscall.RawConn) error {
	return setSockoptInt(c, unix.SO_BROADCAST)
}

func setSockoptInt(c syscall.RawConn, opt int) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
