package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Timed lines are: <t_ns>,<sentence>
//   where t_ns is nanoseconds since START and sentence is everything after
//   the first comma (sentences contain commas themselves).
// - Lines starting with '$' or '!' are untimed sentences; they are played
//   one interval after the previous record.

type Record struct {
	At       time.Duration
	Sentence string
	Timed    bool
}

// IsStart reports whether r is a START marker.
func (r Record) IsStart() bool {
	return r.Sentence == ""
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 4096), 256*1024)

	recs := make([]Record, 0, 256)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}
		if line[0] == '$' || line[0] == '!' {
			recs = append(recs, Record{Sentence: line})
			continue
		}

		comma := strings.IndexByte(line, ',')
		if comma < 0 {
			return nil, fmt.Errorf("invalid replay line %d (missing comma): %q", lineNo, line)
		}
		tsStr := strings.TrimSpace(line[:comma])
		sent := strings.TrimSpace(line[comma+1:])
		if tsStr == "" || sent == "" {
			return nil, fmt.Errorf("invalid replay line %d (empty field): %q", lineNo, line)
		}

		tsNs, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid replay timestamp %q: %w", tsStr, err)
		}
		if tsNs < 0 {
			return nil, fmt.Errorf("invalid replay timestamp (negative): %d", tsNs)
		}

		recs = append(recs, Record{At: time.Duration(tsNs), Sentence: sent, Timed: true})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

// ReadFile loads a log from disk.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

type Writer struct {
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

// WriteSentence appends one timed record. The line trailer is not stored.
func (ww *Writer) WriteSentence(now time.Time, sentence string) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return errors.New("sentence is empty")
	}

	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), sentence)
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper waits on the wall clock and wakes early on cancellation.
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type PlayOptions struct {
	// Speed: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
	Speed float64
	Loop  bool
	// Interval is the wait before each untimed record.
	Interval time.Duration
	Sleeper  Sleeper
}

// Play replays records with their relative timing, calling cb for every
// record that carries a sentence. START markers reset the origin. Play
// returns ctx.Err() when cancelled.
func Play(ctx context.Context, records []Record, opts PlayOptions, cb func(sentence string) error) error {
	if opts.Speed <= 0 {
		return fmt.Errorf("speed must be > 0")
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = RealSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}

	wait := func(d time.Duration) error {
		d = time.Duration(float64(d) / opts.Speed)
		if d <= 0 {
			return ctx.Err()
		}
		return sleeper.Sleep(ctx, d)
	}

	for {
		var origin time.Duration
		var lastAt time.Duration
		var haveLast bool

		for _, r := range records {
			if r.IsStart() {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			if !r.Timed {
				if err := wait(opts.Interval); err != nil {
					return err
				}
			} else {
				at := r.At - origin
				if at < 0 {
					at = 0
				}
				if haveLast {
					gap := at - lastAt
					if gap < 0 {
						gap = 0
					}
					if err := wait(gap); err != nil {
						return err
					}
				}
				lastAt = at
				haveLast = true
			}

			if err := ctx.Err(); err != nil {
				return err
			}
			if err := cb(r.Sentence); err != nil {
				return err
			}
		}

		if !opts.Loop {
			return nil
		}
	}
}
