package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

// acceptPoll bounds how long Read waits for a connection or client data.
const acceptPoll = time.Millisecond

// TCPSink serves one client. The listener is closed once the first client
// connects; when that client goes away the sink has nobody to write to.
type TCPSink struct {
	name   string
	ln     net.Listener
	client net.Conn
	buf    []byte
	log    *zap.Logger
}

// ListenTCP binds addr and waits for a client in Read.
func ListenTCP(ctx context.Context, addr string, log *zap.Logger) (*TCPSink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp: %w", err)
	}
	return &TCPSink{
		name: "tcp://" + ln.Addr().String(),
		ln:   ln,
		buf:  make([]byte, 1024),
		log:  log,
	}, nil
}

// Addr is the bound listener address.
func (s *TCPSink) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *TCPSink) Name() string { return s.name }

// Connected reports whether a client is attached.
func (s *TCPSink) Connected() bool { return s.client != nil }

// Read accepts a pending connection request, or consumes whatever the client
// sent. A client that closed its side is dropped.
func (s *TCPSink) Read() error {
	if s.client == nil {
		return s.accept()
	}

	_ = s.client.SetReadDeadline(time.Now().Add(acceptPoll))
	n, err := s.client.Read(s.buf)
	_ = s.client.SetReadDeadline(time.Time{})
	if n > 0 {
		s.log.Debug("client data discarded", zap.String("sink", s.name), zap.Int("bytes", n))
		return nil
	}
	if isTimeout(err) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		s.log.Info("client disconnected", zap.String("sink", s.name))
	} else {
		s.log.Warn("client read failed", zap.String("sink", s.name), zap.Error(err))
	}
	_ = s.client.Close()
	s.client = nil
	return nil
}

func (s *TCPSink) accept() error {
	if s.ln == nil {
		return nil
	}
	if dl, ok := s.ln.(interface{ SetDeadline(time.Time) error }); ok {
		_ = dl.SetDeadline(time.Now().Add(acceptPoll))
	}
	conn, err := s.ln.Accept()
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		return fmt.Errorf("accept: %w", err)
	}
	s.log.Info("client connected", zap.String("sink", s.name), zap.String("remote", conn.RemoteAddr().String()))
	s.client = conn
	// Only one client is served.
	_ = s.ln.Close()
	s.ln = nil
	return nil
}

// Write sends line to the connected client; without a client it is a no-op.
func (s *TCPSink) Write(line string) error {
	if s.client == nil {
		return nil
	}
	if _, err := io.WriteString(s.client, line); err != nil {
		_ = s.client.Close()
		s.client = nil
		return fmt.Errorf("write %s: %w", s.name, err)
	}
	return nil
}

// Drain shuts the client connection down in both directions.
func (s *TCPSink) Drain() error {
	c, ok := s.client.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := c.CloseWrite(); err != nil {
		return err
	}
	return c.CloseRead()
}

func (s *TCPSink) Close() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
		s.client = nil
	}
	if s.ln != nil {
		errs = append(errs, s.ln.Close())
		s.ln = nil
	}
	return errors.Join(errs...)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
