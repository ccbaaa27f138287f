package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rotmast/internal/config"
	"rotmast/internal/replay"
	"rotmast/internal/sim"
)

func newSimCmd(a *app) *cobra.Command {
	var (
		tcp, udp, logPath string
		delay             time.Duration
		speed             float64
		loop, mast        bool
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Feed checksummed sentences to a TCP client and/or UDP address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &a.cfg.Sim
			f := cmd.Flags()
			if f.Changed("tcp") {
				s.TCP = tcp
			}
			if f.Changed("udp") {
				s.UDP = udp
			}
			if f.Changed("log") {
				s.Replay.Path = logPath
			}
			if f.Changed("delay") {
				s.Delay = delay
			}
			if f.Changed("speed") {
				s.Replay.Speed = speed
			}
			if f.Changed("loop") {
				s.Replay.Loop = loop
			}
			if f.Changed("mast") {
				s.Mast.Enable = mast
			}
			if err := config.DefaultAndValidate(&a.cfg); err != nil {
				return err
			}
			return runSim(cmd.Context(), a.cfg.Sim, a.logger())
		},
	}
	f := cmd.Flags()
	f.StringVar(&tcp, "tcp", "", "listen address for one TCP client")
	f.StringVar(&udp, "udp", "", "UDP destination address")
	f.StringVar(&logPath, "log", "", "replay log to feed instead of the canned sentence")
	f.DurationVar(&delay, "delay", 0, "wait between untimed sentences")
	f.Float64Var(&speed, "speed", 0, "replay speed multiplier")
	f.BoolVar(&loop, "loop", false, "restart the replay log when it ends")
	f.BoolVar(&mast, "mast", false, "feed synthetic mast readings")
	return cmd
}

// runSim runs one feeder per configured sink until ctx is done or every
// feeder has finished.
func runSim(ctx context.Context, cfg config.SimConfig, log *zap.Logger) error {
	var records []replay.Record
	if cfg.Replay.Path != "" {
		recs, err := replay.ReadFile(cfg.Replay.Path)
		if err != nil {
			return fmt.Errorf("replay log: %w", err)
		}
		records = recs
		log.Info("replay loaded", zap.String("path", cfg.Replay.Path), zap.Int("records", len(records)))
	}

	sinks, err := openSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sinks {
		f := newFeeder(cfg, s, records, log)
		g.Go(func() error {
			if err := f.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", f.Sink.Name(), err)
			}
			log.Info("feeder done", zap.String("sink", f.Sink.Name()), zap.Int("fed", f.Index()))
			return nil
		})
	}
	return g.Wait()
}

func openSinks(ctx context.Context, cfg config.SimConfig, log *zap.Logger) ([]sim.LineSink, error) {
	var sinks []sim.LineSink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}
	if cfg.TCP != "" {
		s, err := sim.ListenTCP(ctx, cfg.TCP, log)
		if err != nil {
			return nil, err
		}
		log.Info("tcp sink listening", zap.String("sink", s.Name()))
		sinks = append(sinks, s)
	}
	if cfg.UDP != "" {
		s, err := sim.NewUDPSink(ctx, cfg.UDP)
		if err != nil {
			closeAll()
			return nil, err
		}
		log.Info("udp sink ready", zap.String("sink", s.Name()))
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("no sink configured: set sim.tcp or sim.udp")
	}
	return sinks, nil
}

func newFeeder(cfg config.SimConfig, sink sim.LineSink, records []replay.Record, log *zap.Logger) *sim.Feeder {
	f := &sim.Feeder{
		Sink:    sink,
		Records: records,
		Play: replay.PlayOptions{
			Speed:    cfg.Replay.Speed,
			Loop:     cfg.Replay.Loop,
			Interval: cfg.Delay,
		},
		Log: log,
	}
	if cfg.Mast.Enable && len(records) == 0 {
		m := cfg.Mast
		f.Mast = &sim.MastSim{
			HeadingDeg:  m.HeadingDeg,
			WindFromDeg: m.WindFromDeg,
			WindKt:      m.WindKt,
			SwingDeg:    m.SwingDeg,
			RollAmpDeg:  m.RollAmpDeg,
			PitchAmpDeg: m.PitchAmpDeg,
			AirTempC:    m.AirTempC,
			Period:      m.Period,
		}
	}
	return f
}
