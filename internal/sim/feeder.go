package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rotmast/internal/replay"
	"rotmast/internal/sentence"
)

// DefaultSentence is fed when neither a log nor the synthetic mast is
// configured.
const DefaultSentence = "$CCMWV,5,T,0.0,N,A"

// Feeder writes checksummed sentences to a sink.
type Feeder struct {
	Sink LineSink

	// Records is the log to replay. When empty, Mast (if set) or
	// DefaultSentence is fed every Play.Interval.
	Records []replay.Record
	Mast    *MastSim
	Play    replay.PlayOptions

	Log *zap.Logger
	// Now is used for the synthetic mast; defaults to time.Now.
	Now func() time.Time

	index int
}

// Index is the number of sentences fed so far.
func (f *Feeder) Index() int { return f.index }

// Frame returns s with its "*hh\r\n" trailer. Sentences that already carry
// a checksum only get the line trailer.
func Frame(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if _, _, ok := sentence.SplitChecksum(s); ok {
		return s + "\r\n"
	}
	return sentence.AddChecksum(s)
}

// Feed services the sink's inbound side and writes one sentence.
func (f *Feeder) Feed(s string) error {
	if err := f.Sink.Read(); err != nil {
		return err
	}
	line := Frame(s)
	if err := f.Sink.Write(line); err != nil {
		return err
	}
	f.index++
	f.logger().Debug("fed", zap.String("sink", f.Sink.Name()), zap.Int("index", f.index), zap.String("line", strings.TrimSpace(line)))
	return nil
}

// Run feeds until ctx is cancelled or a non-looping log ends, then drains
// the sink. Cancellation is not an error.
func (f *Feeder) Run(ctx context.Context) error {
	if f.Sink == nil {
		return fmt.Errorf("feeder sink is nil")
	}
	if f.Play.Speed <= 0 {
		f.Play.Speed = 1
	}
	if f.Play.Interval <= 0 {
		f.Play.Interval = time.Second
	}
	f.logger().Info("feeding", zap.String("sink", f.Sink.Name()), zap.Int("records", len(f.Records)), zap.Bool("synthetic", f.Mast != nil))

	var err error
	switch {
	case len(f.Records) > 0:
		err = replay.Play(ctx, f.Records, f.Play, f.Feed)
	case f.Mast != nil:
		err = f.runMast(ctx)
	default:
		play := f.Play
		play.Loop = true
		err = replay.Play(ctx, []replay.Record{{Sentence: DefaultSentence}}, play, f.Feed)
	}

	if derr := f.Sink.Drain(); derr != nil {
		f.logger().Debug("drain failed", zap.String("sink", f.Sink.Name()), zap.Error(derr))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (f *Feeder) runMast(ctx context.Context) error {
	now := f.Now
	if now == nil {
		now = time.Now
	}
	sleeper := f.Play.Sleeper
	if sleeper == nil {
		sleeper = replay.RealSleeper{}
	}
	for {
		for _, s := range f.Mast.Sentences(now()) {
			if err := f.Feed(s); err != nil {
				return err
			}
		}
		if err := sleeper.Sleep(ctx, time.Duration(float64(f.Play.Interval)/f.Play.Speed)); err != nil {
			return err
		}
	}
}

func (f *Feeder) logger() *zap.Logger {
	if f.Log == nil {
		f.Log = zap.NewNop()
	}
	return f.Log
}
