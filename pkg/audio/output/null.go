// ABOUTME: Headless output clocked by wall time
// ABOUTME: Renders the mix into nothing, for hosts without audio hardware
package output

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
)

const nullRenderChunk = 4096

// Null is a sink whose device is a wall clock. Scheduled buffers are mixed
// and discarded as their play time passes.
type Null struct {
	logger   *slog.Logger
	timeline *Timeline
	clock    func() time.Time

	mu       sync.Mutex
	since    time.Time
	rate     int
	channels int
	rendered int64
	scratch  []int32
}

// NewNull creates a headless output
func NewNull(logger *slog.Logger) *Null {
	return newNullWithClock(logger, time.Now)
}

func newNullWithClock(logger *slog.Logger, clock func() time.Time) *Null {
	return &Null{
		logger:   logger,
		timeline: NewTimeline(),
		clock:    clock,
	}
}

// Open configures the virtual device for format
func (n *Null) Open(format audio.Format) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.rate == format.SampleRate && n.channels == format.Channels {
		return nil
	}

	n.advanceLocked()
	n.timeline.Configure(format.SampleRate, format.Channels)
	n.since = n.clock()
	n.rate = format.SampleRate
	n.channels = format.Channels
	n.rendered = 0
	n.logger.Debug("null output opened", "rate", format.SampleRate, "channels", format.Channels)
	return nil
}

// advanceLocked renders every frame that is due by wall time (must hold n.mu)
func (n *Null) advanceLocked() {
	if n.rate == 0 || n.channels == 0 {
		return
	}

	due := int64(n.clock().Sub(n.since).Seconds() * float64(n.rate))
	for n.rendered < due {
		frames := min(due-n.rendered, nullRenderChunk)
		samples := int(frames) * n.channels
		if cap(n.scratch) < samples {
			n.scratch = make([]int32, samples)
		}
		n.timeline.Render(n.scratch[:samples])
		n.rendered += frames
	}
}

// Now returns the output clock in seconds
func (n *Null) Now() float64 {
	n.mu.Lock()
	n.advanceLocked()
	n.mu.Unlock()
	return n.timeline.Now()
}

// Schedule queues buf at output time at
func (n *Null) Schedule(buf audio.Buffer, at float64) (Handle, error) {
	n.mu.Lock()
	n.advanceLocked()
	n.mu.Unlock()

	rate, channels := n.timeline.Layout()
	if rate == 0 {
		return 0, ErrNotOpen
	}
	return n.timeline.Add(prepare(buf, rate, channels), at)
}

// Cancel removes a scheduled buffer
func (n *Null) Cancel(h Handle) {
	n.timeline.Remove(h)
}

// Pending returns the number of buffers not yet played out
func (n *Null) Pending() int {
	n.mu.Lock()
	n.advanceLocked()
	n.mu.Unlock()
	return n.timeline.Pending()
}

// SetVolume sets software gain
func (n *Null) SetVolume(volume int, muted bool) {
	n.timeline.SetVolume(volume, muted)
}

// Stop drops scheduled audio
func (n *Null) Stop() error {
	n.timeline.Clear()
	return nil
}

// Close releases nothing
func (n *Null) Close() error {
	return nil
}
