//go:build !linux

package linesock

import (
	"syscall"
	"time"
)

func pollReadable(rc syscall.RawConn, timeout time.Duration) (bool, error) {
	return false, errPollUnsupported
}
