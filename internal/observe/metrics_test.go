package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/Resonate-Protocol/resonate-player/pkg/resonate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var _ resonate.Recorder = (*Metrics)(nil)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return metricdata.Metrics{}
}

func sumByAttr(t *testing.T, m metricdata.Metrics, key string) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %q is not an int64 sum", m.Name)

	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestChunkCounters(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.ChunkReceived()
	m.ChunkReceived()
	m.ChunkReceived()
	m.ChunkScheduled(false)
	m.ChunkScheduled(true)
	m.ChunkDropped(resonate.DropNoFormat)

	rm := collect(t, reader)
	assert.Equal(t, int64(3), sumByAttr(t, findMetric(t, rm, "resonate.chunks.received"), "")[""])
	assert.Equal(t, int64(2), sumByAttr(t, findMetric(t, rm, "resonate.chunks.scheduled"), "")[""])
	assert.Equal(t, int64(1), sumByAttr(t, findMetric(t, rm, "resonate.chunks.late"), "")[""])

	dropped := sumByAttr(t, findMetric(t, rm, "resonate.chunks.dropped"), "reason")
	assert.Equal(t, map[string]int64{resonate.DropNoFormat: 1}, dropped)
}

func TestControlMessagesByType(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.ControlMessage("server/time")
	m.ControlMessage("server/time")
	m.ControlMessage("stream/start")
	m.Reconnect()

	rm := collect(t, reader)
	byType := sumByAttr(t, findMetric(t, rm, "resonate.control.messages"), "type")
	assert.Equal(t, int64(2), byType["server/time"])
	assert.Equal(t, int64(1), byType["stream/start"])
	assert.Equal(t, int64(1), sumByAttr(t, findMetric(t, rm, "resonate.reconnects"), "")[""])
}

func TestSyncGauges(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.SyncUpdated(400, 100)
	m.SyncUpdated(250, 120)

	rm := collect(t, reader)
	gauge, ok := findMetric(t, rm, "resonate.sync.error").Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 250.0, gauge.DataPoints[0].Value, 1e-9)

	offset, ok := findMetric(t, rm, "resonate.sync.offset").Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	assert.InDelta(t, 120.0, offset.DataPoints[0].Value, 1e-9)
}

func TestProviderServesPrometheus(t *testing.T) {
	p, err := NewProvider("resonate-player", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	p.Metrics.ChunkReceived()
	p.Metrics.ChunkDropped(resonate.DropDecode)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "resonate_chunks_received_total")
	assert.Contains(t, string(body), `reason="decode"`)
}
