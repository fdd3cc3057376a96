// ABOUTME: Oto-based audio output implementation
// ABOUTME: Suspend backend: the context is suspended when a stream ends
package output

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// otoBufferDuration bounds how far ahead of the speaker oto pulls samples
const otoBufferDuration = 50 * time.Millisecond

// Oto output implementation using oto library. oto allows one context per
// process, so the first stream fixes the device rate and later streams are
// resampled to it.
type Oto struct {
	logger   *slog.Logger
	timeline *Timeline

	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	sampleRate int
	channels   int
	suspended  bool
}

// NewOto creates a new Oto output
func NewOto(logger *slog.Logger) *Oto {
	return &Oto{
		logger:   logger,
		timeline: NewTimeline(),
	}
}

// Open creates the context on first use and resumes it afterwards
func (o *Oto) Open(format audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		if format.SampleRate != o.sampleRate || format.Channels != o.channels {
			o.logger.Info("stream format differs from output, converting",
				"stream_rate", format.SampleRate, "stream_channels", format.Channels,
				"output_rate", o.sampleRate, "output_channels", o.channels)
		}
		if o.suspended {
			if err := o.otoCtx.Resume(); err != nil {
				return fmt.Errorf("failed to resume oto context: %w", err)
			}
			o.suspended = false
		}
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   otoBufferDuration,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = format.SampleRate
	o.channels = format.Channels
	o.timeline.Configure(format.SampleRate, format.Channels)

	// One persistent player pulls the mix
	o.player = o.otoCtx.NewPlayer(&timelineReader{timeline: o.timeline, channels: format.Channels})
	o.player.SetBufferSize(int(otoBufferDuration.Seconds()*float64(format.SampleRate)) * format.Channels * 2)
	o.player.Play()

	o.logger.Info("audio output initialized", "rate", format.SampleRate, "channels", format.Channels)
	return nil
}

// Now returns the output clock in seconds
func (o *Oto) Now() float64 {
	return o.timeline.Now()
}

// Schedule queues buf at output time at
func (o *Oto) Schedule(buf audio.Buffer, at float64) (Handle, error) {
	rate, channels := o.timeline.Layout()
	if rate == 0 {
		return 0, ErrNotOpen
	}
	return o.timeline.Add(prepare(buf, rate, channels), at)
}

// Cancel removes a scheduled buffer
func (o *Oto) Cancel(h Handle) {
	o.timeline.Remove(h)
}

// SetVolume sets software gain
func (o *Oto) SetVolume(volume int, muted bool) {
	o.timeline.SetVolume(volume, muted)
}

// Stop drops scheduled audio and suspends the context
func (o *Oto) Stop() error {
	o.timeline.Clear()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx == nil || o.suspended {
		return nil
	}
	if err := o.otoCtx.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend oto context: %w", err)
	}
	o.suspended = true
	o.logger.Debug("stream stopped, output suspended")
	return nil
}

// Close releases output resources. The oto context itself lives for the
// rest of the process.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			o.logger.Warn("player close error", "error", err)
		}
		o.player = nil
	}
	if o.otoCtx != nil && !o.suspended {
		if err := o.otoCtx.Suspend(); err != nil {
			o.logger.Warn("context suspend error", "error", err)
		}
		o.suspended = true
	}
	return nil
}

// timelineReader renders the timeline as 16-bit PCM for the oto player
type timelineReader struct {
	timeline *Timeline
	channels int
	scratch  []int32
}

// Read fills p with whole frames of the mix
func (r *timelineReader) Read(p []byte) (int, error) {
	frameBytes := r.channels * 2
	n := len(p) / frameBytes * frameBytes
	samples := n / 2
	if cap(r.scratch) < samples {
		r.scratch = make([]int32, samples)
	}
	buf := r.scratch[:samples]

	r.timeline.Render(buf)
	encodeSamples(p, buf, 16)
	return n, nil
}
