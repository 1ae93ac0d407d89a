// ABOUTME: Tests for speaker session orchestration
// ABOUTME: Runs sessions against the simulated backend
package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/speechkit/ttsplay/internal/ui"
	"github.com/speechkit/ttsplay/internal/utterance"
	"github.com/speechkit/ttsplay/pkg/audio"
	"github.com/speechkit/ttsplay/pkg/audio/output"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

var speech = audio.Format{Encoding: audio.FormatS16LE, SampleRate: 16000, Channels: 1}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	pc := playback.DefaultConfig()
	pc.BufferTime = 100 * time.Millisecond
	pc.MinPeriods = 4
	pc.Resume.Interval = time.Millisecond
	return Config{Playback: pc, Logger: quiet()}
}

func tones(count int) utterance.Source {
	return utterance.NewToneSource(utterance.ToneOptions{
		Duration: 200 * time.Millisecond,
		Count:    count,
	}, speech)
}

// scripted yields its items in order; a nil utterance yields err instead.
type scripted struct {
	items  []*utterance.Utterance
	err    error
	closed bool
}

func (s *scripted) Next() (*utterance.Utterance, error) {
	if len(s.items) == 0 {
		return nil, io.EOF
	}
	u := s.items[0]
	s.items = s.items[1:]
	if u == nil {
		return nil, s.err
	}
	return u, nil
}

func (s *scripted) Close() error {
	s.closed = true
	return nil
}

func TestNewSpeaker(t *testing.T) {
	drv := output.NewSimDriver(output.SimOptions{}, quiet())
	a := New(drv, testConfig())
	b := New(drv, testConfig())

	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestRunPlaysEveryUtterance(t *testing.T) {
	var sink bytes.Buffer
	drv := output.NewSimDriver(output.SimOptions{Speed: 20, Sink: &sink}, quiet())

	var states []string
	cfg := testConfig()
	cfg.Notify = func(msg ui.StatusMsg) {
		if msg.State != "" {
			states = append(states, msg.State)
		}
	}

	summary, err := New(drv, cfg).Run(context.Background(), tones(2))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Utterances)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, int64(6400), summary.Frames)
	assert.Equal(t, int64(12800), summary.Stats.BytesWritten)
	assert.Equal(t, 16000, summary.Params.Rate)
	assert.Equal(t, 1, drv.GlobalReleases())
	assert.Equal(t, 0, playback.DriverUsage(drv))

	assert.Equal(t, []string{ui.StateOpening, ui.StateSpeaking, ui.StateDraining, ui.StateDone}, states)
}

func TestRunReportsProgress(t *testing.T) {
	drv := output.NewSimDriver(output.SimOptions{Speed: 20}, quiet())

	var written []int
	cfg := testConfig()
	cfg.ProgressChunks = 1
	cfg.Notify = func(msg ui.StatusMsg) {
		if msg.Written > 0 {
			written = append(written, msg.Written)
		}
	}

	_, err := New(drv, cfg).Run(context.Background(), tones(1))
	require.NoError(t, err)

	// 3200 frames in 400-frame periods
	require.Len(t, written, 8)
	assert.Equal(t, 800, written[0])
	assert.Equal(t, 6400, written[len(written)-1])
}

func TestRunSkipsBadUtterances(t *testing.T) {
	drv := output.NewSimDriver(output.SimOptions{Speed: 20}, quiet())

	good := &utterance.Utterance{Name: "good", Format: speech, PCM: make([]byte, 3200)}
	wrong := &utterance.Utterance{
		Name:   "float",
		Format: audio.Format{Encoding: audio.FormatFloat32LE, SampleRate: 16000, Channels: 1},
		PCM:    make([]byte, 64),
	}
	src := &scripted{items: []*utterance.Utterance{nil, wrong, good}, err: errors.New("read failed")}

	summary, err := New(drv, testConfig()).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Utterances)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, int64(3200), summary.Stats.BytesWritten)
	assert.True(t, src.closed)
}

func TestRunPlaysAtGrantedRate(t *testing.T) {
	caps := output.DefaultCapabilities()
	caps.Rates = []int{22050, 44100}
	drv := output.NewSimDriver(output.SimOptions{Capabilities: &caps, Speed: 20}, quiet())

	src := utterance.NewSlice(&utterance.Utterance{Name: "narrow", Format: speech, PCM: make([]byte, 4000)})

	summary, err := New(drv, testConfig()).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 22050, summary.Params.Rate)
	assert.Equal(t, 1, summary.Utterances)
	assert.Equal(t, int64(4000), summary.Stats.BytesWritten)
}

func TestRunSkipsMismatchedChannels(t *testing.T) {
	drv := output.NewSimDriver(output.SimOptions{Speed: 20}, quiet())

	stereo := audio.Format{Encoding: audio.FormatS16LE, SampleRate: 16000, Channels: 2}
	src := utterance.NewSlice(&utterance.Utterance{Name: "stereo", Format: stereo, PCM: make([]byte, 400)})

	summary, err := New(drv, testConfig()).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Utterances)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, int64(0), summary.Stats.BytesWritten)
}

func TestRunCancelled(t *testing.T) {
	drv := output.NewSimDriver(output.SimOptions{Speed: 20}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(drv, testConfig()).Run(ctx, tones(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Utterances)
	assert.Equal(t, 1, drv.GlobalReleases())
}

func TestRunOpenFailure(t *testing.T) {
	caps := output.DefaultCapabilities()
	caps.MaxChannels = 1
	drv := output.NewSimDriver(output.SimOptions{Capabilities: &caps}, quiet())

	cfg := testConfig()
	cfg.Playback.Channels = 2

	var failed bool
	cfg.Notify = func(msg ui.StatusMsg) {
		if msg.State == ui.StateFailed {
			failed = true
		}
	}

	src := &scripted{}
	_, err := New(drv, cfg).Run(context.Background(), src)
	assert.ErrorIs(t, err, playback.ErrUnsupportedChannelCount)
	assert.True(t, failed)
	assert.True(t, src.closed)
}

func TestRunDeviceDisconnect(t *testing.T) {
	drv := output.NewSimDriver(output.SimOptions{Speed: 20}, quiet())

	cfg := testConfig()
	cfg.Notify = func(msg ui.StatusMsg) {
		if msg.Utterance != "" {
			drv.Device(cfg.Playback.Device).Disconnect()
		}
	}

	summary, err := New(drv, cfg).Run(context.Background(), tones(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, output.ErrDisconnected)
	assert.Contains(t, err.Error(), "tone-1")
	assert.Equal(t, 0, summary.Utterances)
	assert.Equal(t, 0, playback.DriverUsage(drv))
}

func TestRunRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	drv := output.NewSimDriver(output.SimOptions{Speed: 20}, quiet())
	cfg := testConfig()
	cfg.Tracer = tp.Tracer("test")

	sp := New(drv, cfg)
	_, err := sp.Run(context.Background(), tones(2))
	require.NoError(t, err)

	names := map[string]int{}
	for _, span := range recorder.Ended() {
		names[span.Name()]++
	}
	assert.Equal(t, 1, names["ttsplay.session"])
	assert.Equal(t, 2, names["ttsplay.utterance"])
}
