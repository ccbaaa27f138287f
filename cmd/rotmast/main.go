package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rotmast/internal/config"
	"rotmast/internal/logger"
)

type app struct {
	configPath string
	verbose    int

	cfg     config.Config
	log     *zap.Logger
	cleanup func()

	stdout io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{stdout: os.Stdout}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rotmast [host [port]]",
		Short: "Mast instrument dashboard for a gpsd-style sentence stream",
		Long: `rotmast connects to a gpsd-style daemon, asks it to stream, and prints the
latest apparent wind, heading, roll, pitch and air temperature after every line.`,
		Args: cobra.MaximumNArgs(2),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid by now; later failures are not usage errors.
			cmd.SilenceUsage = true
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.cleanup != nil {
				a.cleanup()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML config (optional)")
	root.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "more output (repeat for read tracing)")

	wf := addWatchFlags(root)
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return a.watch(cmd, args, wf)
	}

	watchCmd := &cobra.Command{
		Use:   "watch [host [port]]",
		Short: "Same as running rotmast without a subcommand",
		Args:  cobra.MaximumNArgs(2),
	}
	wwf := addWatchFlags(watchCmd)
	watchCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.watch(cmd, args, wwf)
	}

	root.AddCommand(watchCmd, newSimCmd(a), newEchoCmd(a), newSummaryCmd(a))
	return root
}

// setup loads the config file and builds the logger.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	a.cfg = cfg

	log, cleanup, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Verbose:    a.verbose > 0,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	a.log = log
	a.cleanup = cleanup
	return nil
}

func (a *app) logger() *zap.Logger {
	if a.log == nil {
		a.log = zap.NewNop()
	}
	return a.log
}

func (a *app) out() io.Writer {
	if a.stdout == nil {
		return io.Discard
	}
	return a.stdout
}
