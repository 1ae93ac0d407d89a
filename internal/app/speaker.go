// ABOUTME: Speaker session orchestration
// ABOUTME: Opens one controller, plays every utterance from a source, then drains and closes
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/speechkit/ttsplay/internal/ui"
	"github.com/speechkit/ttsplay/internal/utterance"
	"github.com/speechkit/ttsplay/internal/version"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

// Config holds speaker configuration
type Config struct {
	Playback playback.Config
	Logger   *slog.Logger
	Tracer   trace.Tracer

	// Notify receives session progress. Optional.
	Notify func(ui.StatusMsg)

	// ProgressChunks splits each utterance into writes of this many
	// periods so progress and cancellation are seen mid-utterance. Zero
	// hands each utterance to the controller in one write.
	ProgressChunks int
}

// Summary describes a finished session.
type Summary struct {
	SessionID  string
	Utterances int
	Skipped    int
	Frames     int64
	Elapsed    time.Duration
	Params     playback.Params
	Stats      playback.Stats
}

// Speaker plays utterances through one playback controller per session.
type Speaker struct {
	config    Config
	driver    playback.Driver
	sessionID string
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a speaker that opens devices through driver.
func New(driver playback.Driver, config Config) *Speaker {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(version.Product)
	}

	id := uuid.New().String()
	config.Playback.Logger = logger.With("session", id)

	return &Speaker{
		config:    config,
		driver:    driver,
		sessionID: id,
		logger:    logger.With("session", id),
		tracer:    tracer,
	}
}

// SessionID returns the id attached to this speaker's logs and spans.
func (s *Speaker) SessionID() string {
	return s.sessionID
}

// Run opens the device, plays src to the end, drains and closes. A source
// error skips that utterance. Cancelling ctx stops between writes; the
// audio already queued still drains. src is closed before Run returns.
func (s *Speaker) Run(ctx context.Context, src utterance.Source) (Summary, error) {
	defer src.Close()

	started := time.Now()
	summary := Summary{SessionID: s.sessionID}

	ctx, span := s.tracer.Start(ctx, "ttsplay.session",
		trace.WithAttributes(
			attribute.String("session.id", s.sessionID),
			attribute.String("audio.driver", s.driver.Name()),
			attribute.String("audio.device", s.config.Playback.Device),
		))
	defer span.End()

	s.notify(ui.StatusMsg{Session: s.sessionID, State: ui.StateOpening})

	ctrl, err := playback.Open(s.driver, s.config.Playback)
	if err != nil {
		s.fail(span, err)
		return summary, err
	}

	params := ctrl.Params()
	summary.Params = params
	span.SetAttributes(
		attribute.Int("audio.rate", params.Rate),
		attribute.Int("audio.channels", params.Channels),
		attribute.Int("audio.chunk_frames", params.ChunkFrames),
		attribute.Int("audio.buffer_frames", params.BufferFrames),
	)
	s.logger.Info("session started",
		"product", version.Product,
		"version", version.Version,
		"device", ctrl.DeviceName(),
		"rate", params.Rate,
		"channels", params.Channels,
	)
	s.notify(ui.StatusMsg{
		Backend: s.driver.Name(),
		Device:  ctrl.DeviceName(),
		State:   ui.StateSpeaking,
		Params:  &params,
	})

	runErr := ctrl.Start()
	if runErr == nil {
		runErr = s.play(ctx, ctrl, src, &summary)
	}

	if !ctrl.Closed() {
		s.notify(ui.StatusMsg{State: ui.StateDraining})
		ctrl.Drain()
	}
	if err := ctrl.Close(); err != nil && runErr == nil {
		runErr = err
	}

	stats := ctrl.Stats()
	summary.Stats = stats
	summary.Elapsed = time.Since(started)
	span.SetAttributes(
		attribute.Int("ttsplay.utterances", summary.Utterances),
		attribute.Int64("playback.bytes_written", stats.BytesWritten),
		attribute.Int64("playback.underruns", stats.Underruns),
		attribute.Int64("playback.suspends", stats.Suspends),
	)

	if runErr != nil {
		s.fail(span, runErr)
		s.notify(ui.StatusMsg{Stats: &stats})
		return summary, runErr
	}

	s.logger.Info("session finished",
		"utterances", summary.Utterances,
		"skipped", summary.Skipped,
		"frames", summary.Frames,
		"elapsed", summary.Elapsed,
	)
	s.notify(ui.StatusMsg{State: ui.StateDone, Stats: &stats})
	return summary, nil
}

func (s *Speaker) play(ctx context.Context, ctrl *playback.Controller, src utterance.Source, summary *Summary) error {
	format := ctrl.Params().AudioFormat()

	for index := 1; ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		u, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			s.logger.Warn("skipping utterance", "index", index, "error", err)
			s.notify(ui.StatusMsg{Err: err})
			summary.Skipped++
			continue
		}

		if err := u.Playable(format); err != nil {
			s.logger.Warn("skipping utterance", "index", index, "error", err)
			s.notify(ui.StatusMsg{Err: err})
			summary.Skipped++
			continue
		}

		if err := s.speak(ctx, ctrl, u, index); err != nil {
			return err
		}
		summary.Utterances++
		summary.Frames += int64(u.Frames())
	}
}

func (s *Speaker) speak(ctx context.Context, ctrl *playback.Controller, u *utterance.Utterance, index int) error {
	ctx, span := s.tracer.Start(ctx, "ttsplay.utterance",
		trace.WithAttributes(
			attribute.String("utterance.name", u.Name),
			attribute.Int("utterance.index", index),
			attribute.Int("utterance.frames", u.Frames()),
		))
	defer span.End()

	s.logger.Debug("speaking", "utterance", u.Name, "index", index, "frames", u.Frames())
	s.notify(ui.StatusMsg{Utterance: u.Name, Index: index, Total: len(u.PCM)})

	step := len(u.PCM)
	if s.config.ProgressChunks > 0 {
		step = ctrl.Params().ChunkBytes * s.config.ProgressChunks
	}

	written := 0
	for written < len(u.PCM) {
		if written > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		end := min(written+step, len(u.PCM))
		n, err := ctrl.Write(u.PCM[written:end])
		written += n
		if err != nil {
			err = fmt.Errorf("utterance %s: %w", u.Name, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		stats := ctrl.Stats()
		s.notify(ui.StatusMsg{Written: written, Stats: &stats})
	}
	return nil
}

func (s *Speaker) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var fatal *playback.FatalError
	if errors.As(err, &fatal) {
		s.logger.Error("playback failed", "op", fatal.Op, "error", fatal.Err)
	} else {
		s.logger.Error("session failed", "error", err)
	}
	s.notify(ui.StatusMsg{State: ui.StateFailed, Err: err})
}

func (s *Speaker) notify(msg ui.StatusMsg) {
	if s.config.Notify != nil {
		s.config.Notify(msg)
	}
}
