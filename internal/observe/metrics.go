// ABOUTME: OpenTelemetry instruments for playback and protocol events
// ABOUTME: Implements resonate.Recorder on top of an otel Meter
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all player metrics
const meterName = "github.com/Resonate-Protocol/resonate-player"

// Metrics holds the player's metric instruments. Safe for concurrent use.
type Metrics struct {
	ChunksReceived  metric.Int64Counter
	ChunksScheduled metric.Int64Counter

	// ChunksLate counts chunks whose play time had passed and were clamped
	// to the output clock.
	ChunksLate metric.Int64Counter

	// ChunksDropped uses attribute "reason".
	ChunksDropped metric.Int64Counter

	// ControlMessages uses attribute "type".
	ControlMessages metric.Int64Counter

	Reconnects metric.Int64Counter

	SyncError  metric.Float64Gauge
	SyncOffset metric.Float64Gauge
}

// NewMetrics creates the instruments on the given provider
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunksReceived, err = m.Int64Counter("resonate.chunks.received",
		metric.WithDescription("Binary audio frames received from the server."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("resonate.chunks.scheduled",
		metric.WithDescription("Decoded chunks handed to the audio output."),
	); err != nil {
		return nil, err
	}
	if met.ChunksLate, err = m.Int64Counter("resonate.chunks.late",
		metric.WithDescription("Chunks scheduled after their play time."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("resonate.chunks.dropped",
		metric.WithDescription("Chunks dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.ControlMessages, err = m.Int64Counter("resonate.control.messages",
		metric.WithDescription("Control messages received by type."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("resonate.reconnects",
		metric.WithDescription("Reconnect attempts after an unexpected close."),
	); err != nil {
		return nil, err
	}
	if met.SyncError, err = m.Float64Gauge("resonate.sync.error",
		metric.WithDescription("Standard deviation of the clock offset estimate."),
		metric.WithUnit("us"),
	); err != nil {
		return nil, err
	}
	if met.SyncOffset, err = m.Float64Gauge("resonate.sync.offset",
		metric.WithDescription("Estimated server minus client clock offset."),
		metric.WithUnit("us"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ChunkReceived implements resonate.Recorder
func (m *Metrics) ChunkReceived() {
	m.ChunksReceived.Add(context.Background(), 1)
}

// ChunkScheduled implements resonate.Recorder
func (m *Metrics) ChunkScheduled(late bool) {
	ctx := context.Background()
	m.ChunksScheduled.Add(ctx, 1)
	if late {
		m.ChunksLate.Add(ctx, 1)
	}
}

// ChunkDropped implements resonate.Recorder
func (m *Metrics) ChunkDropped(reason string) {
	m.ChunksDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// ControlMessage implements resonate.Recorder
func (m *Metrics) ControlMessage(msgType string) {
	m.ControlMessages.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("type", msgType)),
	)
}

// Reconnect implements resonate.Recorder
func (m *Metrics) Reconnect() {
	m.Reconnects.Add(context.Background(), 1)
}

// SyncUpdated implements resonate.Recorder
func (m *Metrics) SyncUpdated(errorMicros, offsetMicros float64) {
	ctx := context.Background()
	m.SyncError.Record(ctx, errorMicros)
	m.SyncOffset.Record(ctx, offsetMicros)
}
