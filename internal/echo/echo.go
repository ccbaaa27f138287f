// Package echo is a small UDP listener used to check simulator output by
// hand: every datagram is logged and answered with its upper-cased payload.
package echo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultAddr = "127.0.0.1:7000"
	maxDatagram = 1024
)

type Server struct {
	conn net.PacketConn
	log  *zap.Logger
	buf  []byte

	// Received counts non-empty datagrams handled by Serve.
	Received int
}

// Listen binds addr (DefaultAddr when empty).
func Listen(ctx context.Context, addr string, log *zap.Logger) (*Server, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	if log == nil {
		log = zap.NewNop()
	}
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	return &Server{conn: conn, log: log, buf: make([]byte, maxDatagram)}, nil
}

func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve handles datagrams until an empty one arrives or ctx is done. Both
// are a normal stop and return nil.
func (s *Server) Serve(ctx context.Context) error {
	if s.conn == nil {
		return net.ErrClosed
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	s.log.Info("echo listening", zap.String("addr", s.conn.LocalAddr().String()))
	for {
		n, from, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		if n == 0 {
			s.log.Info("empty datagram, stopping", zap.Stringer("from", from))
			return nil
		}
		s.Received++

		data := s.buf[:n]
		s.log.Info("datagram", zap.Stringer("from", from), zap.ByteString("data", data))
		reply := bytes.ToUpper(data)
		if _, err := s.conn.WriteTo(reply, from); err != nil {
			// The sender may already be gone; keep serving.
			s.log.Warn("reply failed", zap.Stringer("to", from), zap.Error(err))
			continue
		}
		s.log.Debug("sent", zap.ByteString("data", reply))
	}
}

func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
