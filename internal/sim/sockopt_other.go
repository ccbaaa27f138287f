//go:build !unix

package sim

import "syscall"

func reuseAddr(network, address string, c syscall.RawConn) error { return nil }

func allowBroadcast(network, address string, c syscall.RawConn) error { return nil }
