package sim

import (
	"context"
	"fmt"
	"net"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialUDPFunc func(ctx context.Context, raddr *net.UDPAddr) (udpConn, error)

// UDPSink writes each sentence as one datagram to a unicast or broadcast
// destination. UDP has no connection, so Read and Drain do nothing.
type UDPSink struct {
	dest string
	conn udpConn
}

func NewUDPSink(ctx context.Context, dest string) (*UDPSink, error) {
	return newUDPSink(ctx, dest, net.ResolveUDPAddr, dialUDP)
}

func newUDPSink(ctx context.Context, dest string, resolve resolveFunc, dial dialUDPFunc) (*UDPSink, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	conn, err := dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &UDPSink{dest: addr.String(), conn: conn}, nil
}

func dialUDP(ctx context.Context, raddr *net.UDPAddr) (udpConn, error) {
	// The dialer picks a suitable local address.
	d := &net.Dialer{Control: allowBroadcast}
	c, err := d.DialContext(ctx, "udp", raddr.String())
	if err != nil {
		return nil, err
	}
	return c.(*net.UDPConn), nil
}

func (s *UDPSink) Write(line string) error {
	if len(line) == 0 {
		return nil
	}
	if s.conn == nil {
		return net.ErrClosed
	}
	_, err := s.conn.Write([]byte(line))
	return err
}

// Read discards control strings; nothing is received on a send-only socket.
func (s *UDPSink) Read() error { return nil }

// Drain is a no-op; shutdown does not apply to UDP.
func (s *UDPSink) Drain() error { return nil }

func (s *UDPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *UDPSink) Name() string {
	return "udp://" + s.dest
}
