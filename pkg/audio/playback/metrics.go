// ABOUTME: OpenTelemetry instruments for playback
// ABOUTME: Counts bytes, underruns, suspends, wait timeouts and open controllers
package playback

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationScope = "github.com/speechkit/ttsplay/pkg/audio/playback"

type instruments struct {
	bytesWritten metric.Int64Counter
	underruns    metric.Int64Counter
	suspends     metric.Int64Counter
	waitTimeouts metric.Int64Counter
	active       metric.Int64UpDownCounter
	attrs        metric.MeasurementOption
}

func newInstruments(m metric.Meter, driver, device string) *instruments {
	if m == nil {
		m = otel.Meter(instrumentationScope)
	}
	fallback := noop.NewMeterProvider().Meter(instrumentationScope)

	inst := &instruments{
		attrs: metric.WithAttributes(
			attribute.String("driver", driver),
			attribute.String("device", device),
		),
	}

	var err error
	if inst.bytesWritten, err = m.Int64Counter("playback.bytes_written",
		metric.WithUnit("By"),
		metric.WithDescription("PCM bytes accepted by the device")); err != nil {
		inst.bytesWritten, _ = fallback.Int64Counter("playback.bytes_written")
	}
	if inst.underruns, err = m.Int64Counter("playback.underruns",
		metric.WithDescription("Buffer underruns recovered during writes")); err != nil {
		inst.underruns, _ = fallback.Int64Counter("playback.underruns")
	}
	if inst.suspends, err = m.Int64Counter("playback.suspends",
		metric.WithDescription("Device suspends recovered during writes")); err != nil {
		inst.suspends, _ = fallback.Int64Counter("playback.suspends")
	}
	if inst.waitTimeouts, err = m.Int64Counter("playback.wait_timeouts",
		metric.WithDescription("Writes abandoned because the device did not drain in time")); err != nil {
		inst.waitTimeouts, _ = fallback.Int64Counter("playback.wait_timeouts")
	}
	if inst.active, err = m.Int64UpDownCounter("playback.active_controllers",
		metric.WithDescription("Open playback controllers")); err != nil {
		inst.active, _ = fallback.Int64UpDownCounter("playback.active_controllers")
	}
	return inst
}

func (i *instruments) addBytes(n int) {
	i.bytesWritten.Add(context.Background(), int64(n), i.attrs)
}

func (i *instruments) underrun() {
	i.underruns.Add(context.Background(), 1, i.attrs)
}

func (i *instruments) suspend() {
	i.suspends.Add(context.Background(), 1, i.attrs)
}

func (i *instruments) waitTimeout() {
	i.waitTimeouts.Add(context.Background(), 1, i.attrs)
}

func (i *instruments) opened() {
	i.active.Add(context.Background(), 1, i.attrs)
}

func (i *instruments) closed() {
	i.active.Add(context.Background(), -1, i.attrs)
}
