package linesock

import (
	"errors"
	"syscall"
)

// syscallConn is implemented by *net.TCPConn and friends.
type syscallConn = syscall.Conn

var errPollUnsupported = errors.New("linesock: poll not supported on this platform")
