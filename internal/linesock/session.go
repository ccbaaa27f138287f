package linesock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rotmast/internal/watch"
)

type SessionConfig struct {
	Host string
	Port string

	// BackoffInitial is the first wait after a lost stream; it doubles up to
	// BackoffMax and resets once a line arrives.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Session is a Reader that redials when the stream ends. The first connect
// happens in Stream and its error is returned as is; later losses are
// retried until Interrupt or Close.
type Session struct {
	cfg  SessionConfig
	opts []Option
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	r  *Reader

	flags    watch.Flags
	device   string
	connects int
}

func NewSession(cfg SessionConfig, opts ...Option) *Session {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		opts:   opts,
		log:    newReader(opts).log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Stream connects if needed and sends the watch request. The request is
// repeated on every reconnect.
func (s *Session) Stream(flags watch.Flags, device string) error {
	s.flags, s.device = flags, device
	if r := s.current(); r != nil {
		return r.Stream(flags, device)
	}
	_, err := s.connect()
	return err
}

// Next returns the next complete line, reconnecting as often as needed.
func (s *Session) Next() (string, error) {
	backoff := s.cfg.BackoffInitial
	for {
		r := s.current()
		if r == nil {
			var err error
			r, err = s.connect()
			if err != nil {
				if s.ctx.Err() != nil {
					return "", fmt.Errorf("%w: interrupted", ErrStreamClosed)
				}
				s.log.Warn("reconnect failed", zap.String("host", s.cfg.Host), zap.Duration("backoff", backoff), zap.Error(err))
				if !s.sleep(backoff) {
					return "", fmt.Errorf("%w: interrupted", ErrStreamClosed)
				}
				backoff = min(backoff*2, s.cfg.BackoffMax)
				continue
			}
		}

		line, err := r.Next()
		if err == nil {
			return line, nil
		}
		s.drop(r)
		if s.ctx.Err() != nil {
			return "", err
		}
		s.log.Info("stream lost, reconnecting", zap.String("host", s.cfg.Host), zap.Error(err))
		if !s.sleep(backoff) {
			return "", fmt.Errorf("%w: interrupted", ErrStreamClosed)
		}
		backoff = min(backoff*2, s.cfg.BackoffMax)
	}
}

// Interrupt stops a blocked Next and any further reconnects. It may be called
// from another goroutine.
func (s *Session) Interrupt() error {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.r == nil {
		return nil
	}
	return s.r.Interrupt()
}

// Connects is the number of successful connections so far.
func (s *Session) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *Session) Close() error {
	s.cancel()
	s.mu.Lock()
	r := s.r
	s.r = nil
	s.mu.Unlock()
	return r.Close()
}

func (s *Session) current() *Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r
}

func (s *Session) connect() (*Reader, error) {
	r, err := Dial(s.ctx, s.cfg.Host, s.cfg.Port, s.opts...)
	if err != nil {
		return nil, err
	}
	if err := r.Stream(s.flags, s.device); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("watch request: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		_ = r.Close()
		return nil, s.ctx.Err()
	}
	s.r = r
	s.connects++
	s.log.Debug("session connected", zap.Int("connects", s.connects))
	return r, nil
}

func (s *Session) drop(r *Reader) {
	s.mu.Lock()
	if s.r == r {
		s.r = nil
	}
	s.mu.Unlock()
	_ = r.Close()
}

func (s *Session) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
