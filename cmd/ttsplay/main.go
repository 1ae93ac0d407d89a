// ABOUTME: Entry point for the ttsplay speech player
// ABOUTME: Parses CLI flags, sets up logging and telemetry, and runs one speaker session
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/speechkit/ttsplay/internal/app"
	"github.com/speechkit/ttsplay/internal/config"
	"github.com/speechkit/ttsplay/internal/telemetry"
	"github.com/speechkit/ttsplay/internal/ui"
	"github.com/speechkit/ttsplay/internal/utterance"
	"github.com/speechkit/ttsplay/internal/version"
	"github.com/speechkit/ttsplay/pkg/audio/output"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

var (
	configPath  = flag.String("config", "", "Config file (.yaml, .yml or .toml)")
	backend     = flag.String("backend", "", "Output backend: auto, alsa, malgo, oto, portaudio, sim")
	device      = flag.String("device", "", "Playback device name")
	rate        = flag.Int("rate", 0, "Sample rate in Hz")
	channels    = flag.Int("channels", 0, "Channel count")
	bufferMs    = flag.Int("buffer-ms", 0, "Device buffer time in milliseconds")
	periods     = flag.Int("periods", 0, "Periods per buffer")
	tone        = flag.Bool("tone", false, "Play test tones instead of utterance files")
	toneFreq    = flag.Float64("tone-freq", 0, "Test tone frequency in Hz")
	useTUI      = flag.Bool("tui", false, "Show the terminal UI, logging to file only")
	logFile     = flag.String("log-file", "", "Log file path")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	metricsBind = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [utterance ...]\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Utterances are headerless PCM files in the playback format, or - for stdin.")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ttsplay: %v\n", err)
		return 2
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ttsplay: %v\n", err)
		return 2
	}

	if !*tone && flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	// Set up logging
	level, err := config.ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ttsplay: %v\n", err)
		return 2
	}

	var out io.Writer = os.Stdout
	if *useTUI {
		// TUI mode: log only to file
		out = io.Discard
	}
	if cfg.Telemetry.LogFile != "" {
		f, err := os.OpenFile(cfg.Telemetry.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ttsplay: error opening log file: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()

		if *useTUI {
			out = f
		} else {
			out = io.MultiWriter(os.Stdout, f)
		}
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, out, logger)
	if err != nil {
		logger.Error("telemetry setup failed", "error", err)
		return 1
	}
	otel.SetMeterProvider(tel.MeterProvider())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.Telemetry.PrometheusBind != "" {
		if _, err := tel.Serve(cfg.Telemetry.PrometheusBind); err != nil {
			logger.Error("metrics endpoint failed", "error", err)
			return 1
		}
	}

	b, err := output.ParseBackend(cfg.Playback.Backend)
	if err != nil {
		logger.Error("bad backend", "error", err)
		return 2
	}
	drv, err := output.NewDriver(b, logger)
	if err != nil {
		logger.Error("audio backend unavailable", "backend", string(b), "error", err)
		return 1
	}

	format := cfg.Format()
	var src utterance.Source
	if *tone {
		src = utterance.NewToneSource(utterance.ToneOptions{
			Frequency: cfg.Tone.Frequency,
			Duration:  time.Duration(cfg.Tone.DurationMS) * time.Millisecond,
			Count:     cfg.Tone.Count,
		}, format)
	} else {
		src = utterance.NewFileSource(flag.Args(), format, os.Stdin, logger)
	}

	speakerCfg := app.Config{
		Playback: cfg.PlaybackConfig(logger, tel.Meter()),
		Logger:   logger,
		Tracer:   tel.Tracer(),
	}

	// TUI setup
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tuiDone chan struct{}
	if *useTUI {
		prog := ui.Run(cancel)
		speakerCfg.Notify = ui.Notifier(prog)
		speakerCfg.ProgressChunks = 2

		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := prog.Run(); err != nil {
				logger.Error("TUI stopped", "error", err)
			}
		}()
		defer func() {
			// keep the final state on screen until the user quits
			select {
			case <-tuiDone:
			case <-ctx.Done():
				prog.Quit()
				<-tuiDone
			}
		}()
	}

	speaker := app.New(drv, speakerCfg)
	logger.Info("starting ttsplay",
		"version", version.Version,
		"session", speaker.SessionID(),
		"backend", drv.Name(),
		"device", cfg.Playback.Device,
	)

	summary, err := speaker.Run(ctx, src)
	if err != nil {
		var fatal *playback.FatalError
		switch {
		case errors.As(err, &fatal):
			logger.Error("fatal playback error", "op", fatal.Op, "error", fatal.Err)
			return 1
		case errors.Is(err, context.Canceled):
			logger.Info("interrupted", "utterances", summary.Utterances)
			return 0
		default:
			logger.Error("playback failed", "error", err)
			return 1
		}
	}

	logger.Info("done",
		"utterances", summary.Utterances,
		"skipped", summary.Skipped,
		"bytes_written", summary.Stats.BytesWritten,
		"underruns", summary.Stats.Underruns,
		"suspends", summary.Stats.Suspends,
	)
	return 0
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Playback.Backend = *backend
		case "device":
			cfg.Playback.Device = *device
		case "rate":
			cfg.Playback.Rate = *rate
		case "channels":
			cfg.Playback.Channels = *channels
		case "buffer-ms":
			cfg.Playback.BufferMS = *bufferMs
		case "periods":
			cfg.Playback.Periods = *periods
		case "tone-freq":
			cfg.Tone.Frequency = *toneFreq
		case "log-file":
			cfg.Telemetry.LogFile = *logFile
		case "log-level":
			cfg.Telemetry.LogLevel = *logLevel
		case "metrics":
			cfg.Telemetry.PrometheusBind = *metricsBind
		}
	})
}
