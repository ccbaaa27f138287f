// Package linesock wraps a TCP connection to a gpsd-style daemon and hands
// out one complete newline-terminated line per read, however the transport
// fragments or coalesces the bytes.
//
// A Reader is owned by a single goroutine; only Interrupt may be called
// from another. Ready polls with a bounded wait;
// ReadLine performs at most one receive per call and never times out on its
// own, so callers decide their own polling cadence.
package linesock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"rotmast/internal/watch"
)

// ErrStreamClosed is returned by ReadLine when the peer closed the stream,
// a receive failed, or the reader was closed.
var ErrStreamClosed = errors.New("linesock: stream closed")

const recvSize = 4096

type Reader struct {
	conn    net.Conn
	buf     lineBuffer
	chunk   []byte
	last    string
	log     *zap.Logger
	verbose int

	dialTimeout time.Duration

	// early holds bytes (or the receive error) picked up by the deadline
	// based readiness fallback; the next ReadLine consumes them instead of
	// receiving again.
	early    []byte
	earlyErr error
}

type Option func(*Reader)

// WithLogger sets the logger used for verbose tracing.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// WithVerbose sets the trace level: 1 logs delivered lines, 2 also logs
// every poll step.
func WithVerbose(level int) Option {
	return func(r *Reader) { r.verbose = level }
}

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.dialTimeout = d
		}
	}
}

func newReader(opts []Option) *Reader {
	r := &Reader{
		chunk:       make([]byte, recvSize),
		log:         zap.NewNop(),
		dialTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dial connects to host and port. When port is empty and host ends in
// ":<port>", that suffix is used; a non-numeric suffix fails with
// ErrInvalidPort. Every resolved address is tried in order and ErrConnection
// is returned when none accepts.
func Dial(ctx context.Context, host, port string, opts ...Option) (*Reader, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r := newReader(opts)
	conn, err := connect(ctx, host, port, net.DefaultResolver.LookupIPAddr, defaultDial(r.dialTimeout))
	if err != nil {
		return nil, err
	}
	r.conn = conn
	r.log.Debug("connected", zap.String("remote", conn.RemoteAddr().String()))
	return r, nil
}

// NewReader wraps an already connected stream.
func NewReader(conn net.Conn, opts ...Option) *Reader {
	r := newReader(opts)
	r.conn = conn
	return r
}

// Ready reports whether a line (or part of one) can be read. It returns true
// at once when unconsumed bytes are buffered; otherwise it waits up to timeout
// for the socket to become readable. A zero timeout never blocks.
func (r *Reader) Ready(timeout time.Duration) (bool, error) {
	if r.buf.pending() > 0 || r.early != nil || r.earlyErr != nil {
		return true, nil
	}
	if r.conn == nil {
		return false, ErrStreamClosed
	}
	if sc, ok := r.conn.(syscallConn); ok {
		rc, err := sc.SyscallConn()
		if err == nil {
			ready, err := pollReadable(rc, timeout)
			if !errors.Is(err, errPollUnsupported) {
				return ready, err
			}
		}
	}
	return r.readyByDeadline(timeout)
}

// readyByDeadline performs a receive bounded by a read deadline and parks
// whatever it got for the next ReadLine.
func (r *Reader) readyByDeadline(timeout time.Duration) (bool, error) {
	if timeout < time.Millisecond {
		// An already expired deadline fails the read before it is attempted.
		timeout = time.Millisecond
	}
	if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, err
	}
	n, err := r.conn.Read(r.chunk)
	_ = r.conn.SetReadDeadline(time.Time{})
	if n > 0 {
		r.early = append([]byte(nil), r.chunk[:n]...)
		return true, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false, nil
	}
	if err == nil {
		err = io.EOF
	}
	r.earlyErr = err
	return true, nil
}

// ReadLine delivers the next complete line. It returns the line length when
// a line was delivered (see Last), 0 with a nil error when only a fragment
// has arrived so far, and ErrStreamClosed when the stream has ended.
//
// When the buffer already holds a terminator no receive is performed;
// otherwise exactly one receive of up to 4096 bytes is made.
func (r *Reader) ReadLine() (int, error) {
	if r.conn == nil {
		return 0, ErrStreamClosed
	}
	if r.verbose > 1 {
		r.log.Debug("poll: reading from daemon")
	}

	line, ok := r.buf.appendAndExtract(nil)
	if ok {
		if r.verbose > 1 {
			r.log.Debug("poll: fetching from buffer")
		}
	} else {
		chunk, err := r.receive()
		if r.verbose > 1 {
			r.log.Debug("poll: read complete", zap.Int("bytes", len(chunk)))
		}
		if len(chunk) == 0 {
			if err == nil {
				err = io.EOF
			}
			if r.verbose > 1 {
				r.log.Debug("poll: stream closed", zap.Error(err))
			}
			return 0, fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
		line, ok = r.buf.appendAndExtract(chunk)
		if !ok {
			if r.verbose > 1 {
				r.log.Debug("poll: fragment", zap.String("buffer", r.buf.String()))
			}
			return 0, nil
		}
	}

	// Only possible if the daemon terminates mid-read.
	if line == "" {
		return 0, fmt.Errorf("%w: empty line", ErrStreamClosed)
	}
	r.last = line
	if r.verbose > 0 {
		r.log.Debug("poll: data", zap.String("line", line))
	}
	return len(line), nil
}

// receive returns the bytes from one receive call. Errors that come with
// data are dropped; the next receive reports them again.
func (r *Reader) receive() ([]byte, error) {
	if r.early != nil || r.earlyErr != nil {
		b, err := r.early, r.earlyErr
		r.early, r.earlyErr = nil, nil
		return b, err
	}
	n, err := r.conn.Read(r.chunk)
	if n > 0 {
		return r.chunk[:n], nil
	}
	return nil, err
}

// Next blocks until a complete line is delivered and returns it.
func (r *Reader) Next() (string, error) {
	for {
		n, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		if n > 0 {
			return r.last, nil
		}
	}
}

// Last returns the most recently delivered line, terminator included. It is
// empty until the first successful ReadLine.
func (r *Reader) Last() string {
	return r.last
}

// Send ships a command to the daemon, adding the trailing newline if needed.
func (r *Reader) Send(cmd string) error {
	if r.conn == nil {
		return ErrStreamClosed
	}
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	if r.verbose > 1 {
		r.log.Debug("send", zap.String("cmd", strings.TrimSpace(cmd)))
	}
	_, err := io.WriteString(r.conn, cmd)
	return err
}

// Stream asks the daemon to stream reports. JSON is requested when flags
// select none of JSON, NMEA or Raw.
func (r *Reader) Stream(flags watch.Flags, device string) error {
	return r.Send(watch.Message(watch.Stream(flags), device))
}

// Interrupt makes a blocked ReadLine return ErrStreamClosed. Unlike every
// other method it may be called from another goroutine.
func (r *Reader) Interrupt() error {
	c := r.conn
	if c == nil {
		return nil
	}
	return c.SetReadDeadline(time.Now())
}

// Close releases the connection and drops any buffered bytes. It is safe to
// call more than once.
func (r *Reader) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.buf.reset()
	r.early, r.earlyErr = nil, nil
	return err
}
