// ABOUTME: Tests for telemetry setup
// ABOUTME: Verifies the Prometheus endpoint and the stdout trace exporter
package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechkit/ttsplay/internal/config"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestPrometheusHandler(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, config.TelemetryConfig{}, nil, quiet())
	require.NoError(t, err)
	defer tel.Shutdown(ctx)

	counter, err := tel.Meter().Int64Counter("playback.underruns")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	body := scrape(t, tel.Handler())
	assert.Contains(t, body, "playback_underruns_total")
	assert.Contains(t, body, "service_name=\"ttsplay\"")
}

func TestSetupTwice(t *testing.T) {
	ctx := context.Background()
	a, err := Setup(ctx, config.TelemetryConfig{}, nil, quiet())
	require.NoError(t, err)
	defer a.Shutdown(ctx)

	b, err := Setup(ctx, config.TelemetryConfig{}, nil, quiet())
	require.NoError(t, err)
	defer b.Shutdown(ctx)
}

func TestServe(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, config.TelemetryConfig{}, nil, quiet())
	require.NoError(t, err)

	addr, err := tel.Serve("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, tel.Shutdown(ctx))
}

func TestStdoutTraces(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	tel, err := Setup(ctx, config.TelemetryConfig{TraceStdout: true}, &out, quiet())
	require.NoError(t, err)

	_, span := tel.Tracer().Start(ctx, "speak")
	span.End()
	require.NoError(t, tel.Shutdown(ctx))

	assert.Contains(t, out.String(), "\"Name\":\"speak\"")
}

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, config.TelemetryConfig{}, nil, quiet())
	require.NoError(t, err)
	defer tel.Shutdown(ctx)

	_, span := tel.Tracer().Start(ctx, "speak")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
