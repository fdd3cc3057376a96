// ABOUTME: Audio output tests
// ABOUTME: Verifies timeline mixing, format conversion and the headless sink
package output

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Sink = (*Malgo)(nil)
	_ Sink = (*Oto)(nil)
	_ Sink = (*Null)(nil)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTimelineClockAdvancesWithRender(t *testing.T) {
	tl := NewTimeline()
	tl.Configure(1000, 1)
	assert.Zero(t, tl.Now())

	tl.Render(make([]int32, 250))
	assert.InDelta(t, 0.25, tl.Now(), 1e-12)
}

func TestTimelinePlacesBuffersAtTheirTime(t *testing.T) {
	tl := NewTimeline()
	tl.Configure(10, 1)

	_, err := tl.Add([]int32{7, 8}, 0.3)
	require.NoError(t, err)
	_, err = tl.Add([]int32{1, 2, 3}, 0.0)
	require.NoError(t, err)

	out := make([]int32, 6)
	tl.Render(out)
	assert.Equal(t, []int32{1, 2, 3, 7, 8, 0}, out)
	assert.Zero(t, tl.Pending(), "finished buffers are released")
}

func TestTimelineSpansRenderCalls(t *testing.T) {
	tl := NewTimeline()
	tl.Configure(10, 2)

	_, err := tl.Add([]int32{1, -1, 2, -2, 3, -3}, 0.1)
	require.NoError(t, err)

	first := make([]int32, 4)
	tl.Render(first)
	assert.Equal(t, []int32{0, 0, 1, -1}, first)
	assert.Equal(t, 1, tl.Pending())

	second := make([]int32, 4)
	tl.Render(second)
	assert.Equal(t, []int32{2, -2, 3, -3}, second)
	assert.Zero(t, tl.Pending())
}

func TestTimelineMixesOverlaps(t *testing.T) {
	tl := NewTimeline()
	tl.Configure(10, 1)

	_, err := tl.Add([]int32{100, 100}, 0)
	require.NoError(t, err)
	_, err = tl.Add([]int32{audio.Max24Bit, 5}, 0)
	require.NoError(t, err)

	out := make([]int32, 2)
	tl.Render(out)
	assert.Equal(t, []int32{audio.Max24Bit, 105}, out, "mix clamps to 24-bit range")
}

func TestTimelineLateBufferStartsNow(t *testing.T) {
	tl := NewTimeline()
	tl.Configure(10, 1)
	tl.Render(make([]int32, 5))

	_, err := tl.Add([]int32{9, 9}, 0.1)
	require.NoError(t, err)

	out := make([]int32, 3)
	tl.Render(out)
	assert.Equal(t, []int32{9, 9, 0}, out)
}

func TestTimelineRemoveAndClear(t *testing.T) {
	tl := NewTimeline()
	tl.Configure(10, 1)

	h1, err := tl.Add([]int32{1}, 0)
	require.NoError(t, err)
	_, err = tl.Add([]int32{2}, 0.1)
	require.NoError(t, err)

	assert.True(t, tl.Remove(h1))
	assert.False(t, tl.Remove(h1))
	assert.Equal(t, 1, tl.Clear())

	out := make([]int32, 2)
	tl.Render(out)
	assert.Equal(t, []int32{0, 0}, out)
}

func TestTimelineVolume(t *testing.T) {
	tl := NewTimeline()
	tl.Configure(10, 1)

	tl.SetVolume(50, false)
	_, err := tl.Add([]int32{1000, -1000}, 0)
	require.NoError(t, err)
	out := make([]int32, 2)
	tl.Render(out)
	assert.Equal(t, []int32{500, -500}, out)

	tl.SetVolume(50, true)
	_, err = tl.Add([]int32{1000}, tl.Now())
	require.NoError(t, err)
	out = make([]int32, 1)
	tl.Render(out)
	assert.Equal(t, []int32{0}, out)
}

func TestTimelineRequiresConfigure(t *testing.T) {
	_, err := NewTimeline().Add([]int32{1}, 0)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestTimelineReconfigureKeepsClock(t *testing.T) {
	tl := NewTimeline()
	tl.Configure(100, 1)
	tl.Render(make([]int32, 50))
	_, err := tl.Add([]int32{1}, 10)
	require.NoError(t, err)

	tl.Configure(200, 2)
	assert.InDelta(t, 0.5, tl.Now(), 1e-12)
	assert.Zero(t, tl.Pending())

	tl.Render(make([]int32, 200))
	assert.InDelta(t, 1.0, tl.Now(), 1e-12)
}

func TestRemix(t *testing.T) {
	assert.Equal(t, []int32{5, 5, 6, 6}, remix([]int32{5, 6}, 1, 2))
	assert.Equal(t, []int32{3, 7}, remix([]int32{2, 4, 6, 8}, 2, 1))

	// Surround to stereo keeps the rear channels in the mix
	assert.Equal(t, []int32{20, 30}, remix([]int32{10, 20, 30, 40}, 4, 2))
	assert.Equal(t, []int32{4, 4}, remix([]int32{3, 4, 5}, 3, 2))
	assert.Equal(t, []int32{2, 4, 3}, remix([]int32{2, 4}, 2, 3))
	in := []int32{1, 2}
	assert.Equal(t, in, remix(in, 2, 2))
}

func TestPrepareResamplesToDeviceRate(t *testing.T) {
	buf := audio.Buffer{
		Samples: make([]int32, 441),
		Format:  audio.Format{Codec: "pcm", SampleRate: 44100, Channels: 1, BitDepth: 16},
	}

	out := prepare(buf, 48000, 2)
	assert.Len(t, out, 480*2)
}

func TestEncodeSamples(t *testing.T) {
	samples := []int32{audio.SampleFromInt16(-2), 0x123456}

	out16 := make([]byte, 4)
	encodeSamples(out16, samples, 16)
	assert.Equal(t, []byte{0xFE, 0xFF, 0x34, 0x12}, out16)

	out24 := make([]byte, 6)
	encodeSamples(out24, samples, 24)
	assert.Equal(t, []byte{0x00, 0xFE, 0xFF, 0x56, 0x34, 0x12}, out24)

	out32 := make([]byte, 8)
	encodeSamples(out32, samples, 32)
	assert.Equal(t, []byte{0x00, 0x00, 0xFE, 0xFF, 0x00, 0x56, 0x34, 0x12}, out32)
}

func TestDeviceBitDepth(t *testing.T) {
	assert.Equal(t, 16, deviceBitDepth(0))
	assert.Equal(t, 16, deviceBitDepth(16))
	assert.Equal(t, 24, deviceBitDepth(24))
	assert.Equal(t, 32, deviceBitDepth(32))
}

func TestTimelineReaderProducesWholeFrames(t *testing.T) {
	tl := NewTimeline()
	tl.Configure(10, 2)
	_, err := tl.Add([]int32{audio.SampleFromInt16(1), audio.SampleFromInt16(-1)}, 0)
	require.NoError(t, err)

	r := &timelineReader{timeline: tl, channels: 2}
	p := make([]byte, 7)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x01, 0x00, 0xFF, 0xFF}, p[:4])
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestNullSinkPlaysOutByWallClock(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	sink := newNullWithClock(discardLogger(), clock.Now)

	format := audio.Format{Codec: "pcm", SampleRate: 1000, Channels: 1, BitDepth: 16}
	_, err := sink.Schedule(audio.Buffer{Samples: []int32{1}, Format: format}, 0)
	require.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, sink.Open(format))
	assert.Zero(t, sink.Now())

	_, err = sink.Schedule(audio.Buffer{Samples: make([]int32, 100), Format: format}, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.Pending())

	clock.now = clock.now.Add(250 * time.Millisecond)
	assert.InDelta(t, 0.25, sink.Now(), 1e-9)
	assert.Equal(t, 1, sink.Pending(), "buffer is still playing")

	clock.now = clock.now.Add(100 * time.Millisecond)
	assert.Zero(t, sink.Pending())
}

func TestNullSinkCancelAndStop(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sink := newNullWithClock(discardLogger(), clock.Now)
	format := audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}
	require.NoError(t, sink.Open(format))

	h, err := sink.Schedule(audio.Buffer{Samples: make([]int32, 960), Format: format}, 1)
	require.NoError(t, err)
	_, err = sink.Schedule(audio.Buffer{Samples: make([]int32, 960), Format: format}, 2)
	require.NoError(t, err)

	sink.Cancel(h)
	assert.Equal(t, 1, sink.Pending())

	require.NoError(t, sink.Stop())
	assert.Zero(t, sink.Pending())
	require.NoError(t, sink.Close())
}

func TestNewBackends(t *testing.T) {
	for _, backend := range []string{BackendMalgo, BackendOto, BackendNull} {
		sink, err := New(backend, discardLogger())
		require.NoError(t, err, backend)
		assert.NotNil(t, sink)
	}

	_, err := New("portaudio", nil)
	assert.Error(t, err)
}
