package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"rotmast/internal/config"
	"rotmast/internal/linesock"
	"rotmast/internal/sentence"
	"rotmast/internal/watch"
)

type fakeSource struct {
	lines       []string
	streamFlags watch.Flags
	streamed    int
	interrupted int
	// block makes Next wait for Interrupt once lines run out.
	block chan struct{}
}

func (s *fakeSource) Stream(flags watch.Flags, device string) error {
	s.streamFlags = flags
	s.streamed++
	return nil
}

func (s *fakeSource) Next() (string, error) {
	if len(s.lines) > 0 {
		l := s.lines[0]
		s.lines = s.lines[1:]
		return l, nil
	}
	if s.block != nil {
		<-s.block
	}
	return "", linesock.ErrStreamClosed
}

func (s *fakeSource) Interrupt() error {
	s.interrupted++
	if s.block != nil {
		close(s.block)
	}
	return nil
}

type fakeRecorder struct {
	lines []string
}

func (r *fakeRecorder) WriteSentence(now time.Time, s string) error {
	r.lines = append(r.lines, s)
	return nil
}

type noSleep struct{ calls int }

func (s *noSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.calls++
	return ctx.Err()
}

func TestRunWatch_RendersDashboard(t *testing.T) {
	src := &fakeSource{lines: []string{
		"$IIMWV,045.0,R,12.5,N,A*0A\r\n",
		"\r\n",
		"$HCHDM,271.5,M*28\r\n",
		"$IIXDR,A,-3.5,D,ROLL\r\n",
		"$IIXDR,A,1.25,D,PTCH\r\n",
		"$IIMTA,18.5,C\r\n",
	}}
	var out bytes.Buffer
	sl := &noSleep{}
	dash := sentence.NewDashboard(4)

	err := runWatch(context.Background(), src, watchOptions{
		Flags:     watch.NMEA,
		Interval:  100 * time.Millisecond,
		Dashboard: dash,
		Sleeper:   sl,
		Out:       &out,
	})
	if !errors.Is(err, linesock.ErrStreamClosed) {
		t.Fatalf("err=%v want ErrStreamClosed", err)
	}
	if src.streamed != 1 || src.streamFlags != watch.Enable|watch.NMEA {
		t.Fatalf("stream flags=%v count=%d", src.streamFlags, src.streamed)
	}
	if sl.calls != 5 {
		t.Fatalf("sleeps=%d want 5", sl.calls)
	}
	if got := strings.Count(out.String(), "------------------------------\n"); got != 5 {
		t.Fatalf("rendered %d blocks want 5", got)
	}
	if dash.AWA != 45 || dash.AWS != 12.5 || dash.HDM != 271.5 || dash.Roll != -3.5 || dash.Pitch != 1.25 || dash.Temp != 18.5 {
		t.Fatalf("dashboard=%+v", dash)
	}
	if !strings.HasSuffix(out.String(), "TEMPmtop:\t18.5\n") {
		t.Fatalf("unexpected tail:\n%s", out.String())
	}
}

func TestRunWatch_ReportsUnknownAndMalformed(t *testing.T) {
	src := &fakeSource{lines: []string{
		"$GPGGA,1,2,3\r\n",
		"$HCHDM\r\n",
		"$HCHDM,abc,M\r\n",
	}}
	var out bytes.Buffer
	err := runWatch(context.Background(), src, watchOptions{Sleeper: &noSleep{}, Out: &out})
	if !errors.Is(err, linesock.ErrStreamClosed) {
		t.Fatalf("err=%v", err)
	}
	got := out.String()
	if !strings.Contains(got, "tranche:\t$GPGGA,1,2,3\n") {
		t.Fatalf("missing tranche line:\n%s", got)
	}
	if strings.Count(got, "trouble:\t") != 2 {
		t.Fatalf("want two trouble lines:\n%s", got)
	}
}

func TestRunWatch_SingleCharacterLineIsReported(t *testing.T) {
	src := &fakeSource{lines: []string{"X\r\n", "$IIMWV,12.5,R,3.0,N,A* 1\r\n"}}
	var out bytes.Buffer
	dash := sentence.NewDashboard(4)
	err := runWatch(context.Background(), src, watchOptions{Dashboard: dash, Sleeper: &noSleep{}, Out: &out})
	if !errors.Is(err, linesock.ErrStreamClosed) {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(out.String(), "tranche:\tX\n") {
		t.Fatalf("missing tranche line:\n%s", out.String())
	}
	if dash.Lines != 2 || dash.Skipped != 1 || dash.AWA != 12.5 {
		t.Fatalf("dashboard=%+v", dash)
	}
}

func TestRunWatch_SkipPolicyStaysQuiet(t *testing.T) {
	src := &fakeSource{lines: []string{"$HCHDM\r\n", "$GPGGA,1\r\n"}}
	var out bytes.Buffer
	_ = runWatch(context.Background(), src, watchOptions{Policy: sentence.PolicySkip, Sleeper: &noSleep{}, Out: &out})
	got := out.String()
	if strings.Contains(got, "trouble:") {
		t.Fatalf("skip policy printed trouble:\n%s", got)
	}
	// Unknown sentences are still reported.
	if !strings.Contains(got, "tranche:") {
		t.Fatalf("missing tranche line:\n%s", got)
	}
}

func TestRunWatch_StrictPolicyStops(t *testing.T) {
	src := &fakeSource{lines: []string{"$HCHDM,271.5,M\r\n", "$HCHDM,abc,M\r\n", "$HCHDM,1,M\r\n"}}
	dash := sentence.NewDashboard(4)
	err := runWatch(context.Background(), src, watchOptions{Policy: sentence.PolicyStrict, Dashboard: dash, Sleeper: &noSleep{}})
	if !errors.Is(err, sentence.ErrBadField) {
		t.Fatalf("err=%v want ErrBadField", err)
	}
	if dash.HDM != 271.5 {
		t.Fatalf("HDM=%v want 271.5", dash.HDM)
	}
	if len(src.lines) != 1 {
		t.Fatalf("loop did not stop at the bad sentence")
	}
}

func TestRunWatch_RecordsLines(t *testing.T) {
	src := &fakeSource{lines: []string{"$HCHDM,271.5,M*28\r\n", "\n", "$IIMTA,18.5,C\r\n"}}
	rec := &fakeRecorder{}
	_ = runWatch(context.Background(), src, watchOptions{Record: rec, Sleeper: &noSleep{}})
	want := []string{"$HCHDM,271.5,M*28", "$IIMTA,18.5,C"}
	if strings.Join(rec.lines, "|") != strings.Join(want, "|") {
		t.Fatalf("recorded=%q want %q", rec.lines, want)
	}
}

func TestRunWatch_CancelIsCleanExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{block: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		done <- runWatch(ctx, src, watchOptions{Sleeper: &noSleep{}})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("err=%v want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runWatch did not stop")
	}
	if src.interrupted != 1 {
		t.Fatalf("interrupted=%d want 1", src.interrupted)
	}
}

func TestWatchFlags_Apply(t *testing.T) {
	cmd := &cobra.Command{Use: "watch"}
	wf := addWatchFlags(cmd)
	if err := cmd.ParseFlags([]string{"--policy", "strict", "--watch", "nmea,scaled", "--record", "/tmp/x.log"}); err != nil {
		t.Fatalf("ParseFlags() error: %v", err)
	}

	c := config.ClientConfig{Host: "127.0.0.1", Port: "2947", VerifyChecksum: true}
	wf.apply(cmd, []string{"mast.local", "3000"}, &c)
	if c.Host != "mast.local" || c.Port != "3000" {
		t.Fatalf("host/port=%s:%s", c.Host, c.Port)
	}
	if c.Policy != "strict" || len(c.Watch) != 2 || !c.Record.Enable || c.Record.Path != "/tmp/x.log" {
		t.Fatalf("client=%+v", c)
	}
	if !c.VerifyChecksum {
		t.Fatalf("unchanged flag overrode config")
	}
}
