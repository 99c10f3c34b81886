// Command urmfb draws test patterns, text and images on a framebuffer device.
//
// Usage:
//
//	urmfb [flags] pattern
//	urmfb [flags] clear
//	urmfb [flags] text <message>
//	urmfb [flags] show <image file>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/BeatGlow/urmfb"
	"github.com/BeatGlow/urmfb/internal/config"
	"github.com/BeatGlow/urmfb/metrics"
)

func main() {
	// The command line overrides the config file, so find the file first.
	var (
		configPath = os.Getenv(config.EnvPrefix + "CONFIG")
		scan       = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
		scanned    = config.Default()
	)
	scan.SetOutput(io.Discard)
	scan.StringVar(&configPath, "config", configPath, "")
	scanned.RegisterFlags(scan)
	_ = scan.Parse(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.String("config", configPath, "YAML configuration file")
	cfg.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])
	if err = cfg.Validate(); err != nil {
		fatal(err)
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] pattern|clear|text <message>|show <image>\n", os.Args[0])
		fs.PrintDefaults()
		os.Exit(1)
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fatal(fmt.Errorf("unknown command %q", fs.Arg(0)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, cfg, log, cmd, fs.Args()[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger, cmd command, args []string) error {
	dev, err := openDevice(cfg, log)
	if err != nil {
		return err
	}
	defer dev.Close()
	log.Info().Stringer("device", dev).Msg("using device")

	reg := prometheus.NewRegistry()
	fb, err := urmfb.Acquire(dev, []urmfb.Request{cfg.FramebufferRequest()},
		urmfb.WithLogger(log.With().Str("component", "urmfb").Logger()),
		urmfb.WithObserver(metrics.New(reg)),
		urmfb.WithQueueSize(cfg.QueueSize),
	)
	if err != nil {
		return err
	}
	log.Info().Stringer("framebuffer", fb).Int("request", fb.Index).Msg("acquired")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Metrics != "" {
		srv := newServer(cfg.Metrics, reg, dev.snapshot)
		g.Go(func() error {
			return srv.run(ctx, log)
		})
	}
	g.Go(func() error {
		// Stops the metrics server once the command is done.
		defer cancel()
		return cmd(ctx, fb, cfg, args)
	})
	err = g.Wait()

	if rerr := fb.Release(); err == nil {
		err = rerr
	}
	if cfg.Virtual.Snapshot != "" && dev.virtual != nil {
		if werr := dev.virtual.WritePNG(cfg.Virtual.Snapshot); err == nil {
			err = werr
		}
		log.Info().Str("path", cfg.Virtual.Snapshot).Msg("wrote snapshot")
	}
	return err
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "fatal: "+err.Error())
	os.Exit(1)
}
