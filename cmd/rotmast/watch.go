package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rotmast/internal/config"
	"rotmast/internal/linesock"
	"rotmast/internal/replay"
	"rotmast/internal/sentence"
	"rotmast/internal/watch"
)

type watchFlags struct {
	record  string
	policy  string
	verify  bool
	watch   []string
	device  string
	skipped bool
	retry   bool
}

func addWatchFlags(cmd *cobra.Command) *watchFlags {
	wf := &watchFlags{}
	f := cmd.Flags()
	f.StringVar(&wf.record, "record", "", "append received sentences to a replay log")
	f.StringVar(&wf.policy, "policy", "", "malformed sentence policy: report, skip or strict")
	f.BoolVar(&wf.verify, "verify", false, "require valid checksums")
	f.StringSliceVar(&wf.watch, "watch", nil, "extra watch flags (json, nmea, raw, scaled, ...)")
	f.StringVar(&wf.device, "device", "", "device path to watch")
	f.BoolVar(&wf.skipped, "show-skipped", false, "list recently skipped lines under the dashboard")
	f.BoolVar(&wf.retry, "reconnect", false, "redial with backoff when the daemon drops the stream")
	return wf
}

// apply copies positional args and changed flags over the client config.
func (wf *watchFlags) apply(cmd *cobra.Command, args []string, c *config.ClientConfig) {
	if len(args) > 0 {
		c.Host = args[0]
	}
	if len(args) > 1 {
		c.Port = args[1]
	}
	f := cmd.Flags()
	if f.Changed("record") {
		c.Record = config.RecordConfig{Enable: wf.record != "", Path: wf.record}
	}
	if f.Changed("policy") {
		c.Policy = wf.policy
	}
	if f.Changed("verify") {
		c.VerifyChecksum = wf.verify
	}
	if f.Changed("watch") {
		c.Watch = wf.watch
	}
	if f.Changed("device") {
		c.Device = wf.device
	}
	if f.Changed("show-skipped") {
		c.ShowSkipped = wf.skipped
	}
	if f.Changed("reconnect") {
		c.Reconnect.Enable = wf.retry
	}
}

func (a *app) watch(cmd *cobra.Command, args []string, wf *watchFlags) error {
	wf.apply(cmd, args, &a.cfg.Client)
	if err := config.DefaultAndValidate(&a.cfg); err != nil {
		return err
	}
	c := a.cfg.Client
	log := a.logger()

	flags, err := watch.ParseFlags(c.Watch)
	if err != nil {
		return err
	}
	if c.Device != "" {
		flags |= watch.Device
	}
	policy, err := sentence.ParsePolicy(c.Policy)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ropts := []linesock.Option{
		linesock.WithLogger(log),
		linesock.WithVerbose(a.verbose),
		linesock.WithDialTimeout(c.DialTimeout),
	}
	var src lineSource
	if c.Reconnect.Enable {
		s := linesock.NewSession(linesock.SessionConfig{
			Host:           c.Host,
			Port:           c.Port,
			BackoffInitial: c.Reconnect.BackoffInitial,
			BackoffMax:     c.Reconnect.BackoffMax,
		}, ropts...)
		defer s.Close()
		src = s
	} else {
		r, err := linesock.Dial(ctx, c.Host, c.Port, ropts...)
		if err != nil {
			return err
		}
		defer r.Close()
		src = r
	}
	log.Info("rotmast starting", zap.String("host", c.Host), zap.String("port", c.Port), zap.Stringer("watch", flags|watch.Enable))

	dash := sentence.NewDashboard(c.TailLines)
	dash.VerifyChecksum = c.VerifyChecksum
	dash.ShowSkipped = c.ShowSkipped

	opts := watchOptions{
		Flags:     flags,
		Device:    c.Device,
		Policy:    policy,
		Interval:  c.PollInterval,
		Dashboard: dash,
		Out:       a.out(),
		Log:       log,
	}
	if c.Record.Enable {
		w, err := replay.CreateWriter(c.Record.Path)
		if err != nil {
			return fmt.Errorf("record log: %w", err)
		}
		defer w.Close()
		opts.Record = w
		log.Info("recording", zap.String("path", c.Record.Path))
	}

	err = runWatch(ctx, src, opts)
	log.Info("rotmast stopping", zap.Uint64("lines", dash.Lines), zap.Uint64("skipped", dash.Skipped))
	return err
}

// lineSource is the part of linesock.Reader the dashboard loop uses.
type lineSource interface {
	Stream(flags watch.Flags, device string) error
	Next() (string, error)
	Interrupt() error
}

type sentenceRecorder interface {
	WriteSentence(now time.Time, sentence string) error
}

type watchOptions struct {
	Flags     watch.Flags
	Device    string
	Policy    sentence.Policy
	Interval  time.Duration
	Dashboard *sentence.Dashboard
	Record    sentenceRecorder
	Sleeper   replay.Sleeper
	Out       io.Writer
	Log       *zap.Logger
	Now       func() time.Time
}

// runWatch streams from src and renders the dashboard after every line.
// Cancelling ctx is a clean stop.
func runWatch(ctx context.Context, src lineSource, o watchOptions) error {
	if o.Dashboard == nil {
		o.Dashboard = sentence.NewDashboard(8)
	}
	if o.Sleeper == nil {
		o.Sleeper = replay.RealSleeper{}
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	if err := src.Stream(o.Flags|watch.Enable, o.Device); err != nil {
		return fmt.Errorf("watch request: %w", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = src.Interrupt()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	for {
		line, err := src.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if o.Record != nil {
			if err := o.Record.WriteSentence(o.Now(), trimmed); err != nil {
				o.Log.Warn("record failed", zap.Error(err))
			}
		}

		aerr := o.Dashboard.Apply(line)
		switch o.Policy.Decide(aerr) {
		case sentence.Report:
			if errors.Is(aerr, sentence.ErrSkipped) {
				fmt.Fprintf(o.Out, "tranche:\t%s\n", trimmed)
			} else {
				fmt.Fprintf(o.Out, "trouble:\t%s (%v)\n", trimmed, aerr)
			}
		case sentence.Stop:
			return fmt.Errorf("malformed sentence %q: %w", trimmed, aerr)
		}

		if err := o.Dashboard.Render(o.Out); err != nil {
			return err
		}
		if o.Interval > 0 {
			if err := o.Sleeper.Sleep(ctx, o.Interval); err != nil {
				return nil
			}
		}
	}
}
