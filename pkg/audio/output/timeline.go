// ABOUTME: Sample-accurate mixing timeline behind every sink
// ABOUTME: Places scheduled buffers on a frame clock advanced by the device callback
package output

import (
	"math"
	"sync"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/Resonate-Protocol/resonate-player/pkg/audio/resample"
)

type entry struct {
	start   int64 // first frame on the timeline
	samples []int32
}

// Timeline mixes scheduled buffers into the device stream. Its clock is the
// number of frames the device has pulled, so it only advances while the
// device renders.
type Timeline struct {
	mu sync.Mutex

	sampleRate int
	channels   int
	base       float64 // seconds elapsed under earlier configurations
	rendered   int64   // frames pulled under the current configuration

	volume int
	muted  bool

	next    Handle
	entries map[Handle]*entry
}

// NewTimeline creates an unconfigured timeline at full volume
func NewTimeline() *Timeline {
	return &Timeline{
		volume:  100,
		entries: make(map[Handle]*entry),
	}
}

// Configure sets the device layout. Changing it drops scheduled buffers but
// keeps the clock continuous.
func (t *Timeline) Configure(sampleRate, channels int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sampleRate == sampleRate && t.channels == channels {
		return
	}
	t.base = t.nowLocked()
	t.rendered = 0
	t.sampleRate = sampleRate
	t.channels = channels
	clear(t.entries)
}

// Layout returns the configured sample rate and channel count
func (t *Timeline) Layout() (sampleRate, channels int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleRate, t.channels
}

func (t *Timeline) nowLocked() float64 {
	if t.sampleRate == 0 {
		return t.base
	}
	return t.base + float64(t.rendered)/float64(t.sampleRate)
}

// Now returns the timeline clock in seconds
func (t *Timeline) Now() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nowLocked()
}

// Add schedules interleaved samples (already in device layout) at time at
func (t *Timeline) Add(samples []int32, at float64) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sampleRate == 0 || t.channels == 0 {
		return 0, ErrNotOpen
	}

	start := int64(math.Round((at - t.base) * float64(t.sampleRate)))
	if start < t.rendered {
		start = t.rendered
	}

	t.next++
	t.entries[t.next] = &entry{start: start, samples: samples}
	return t.next, nil
}

// Remove cancels a scheduled buffer
func (t *Timeline) Remove(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[h]; !ok {
		return false
	}
	delete(t.entries, h)
	return true
}

// Clear cancels every scheduled buffer and returns how many were dropped
func (t *Timeline) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entries)
	clear(t.entries)
	return n
}

// Pending returns the number of buffers not yet fully rendered
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// SetVolume sets the software gain applied while rendering
func (t *Timeline) SetVolume(volume int, muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.volume = max(0, min(100, volume))
	t.muted = muted
}

// Render fills out with the next frames of the mix and advances the clock.
// Gaps render as silence.
func (t *Timeline) Render(out []int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	clear(out)
	if t.channels == 0 {
		return
	}

	frames := int64(len(out) / t.channels)
	windowStart := t.rendered
	windowEnd := windowStart + frames

	for h, e := range t.entries {
		entryEnd := e.start + int64(len(e.samples)/t.channels)
		if entryEnd <= windowStart {
			delete(t.entries, h)
			continue
		}
		if e.start >= windowEnd {
			continue
		}

		from := max(e.start, windowStart)
		to := min(entryEnd, windowEnd)
		for f := from; f < to; f++ {
			src := int((f - e.start) * int64(t.channels))
			dst := int((f - windowStart) * int64(t.channels))
			for c := 0; c < t.channels; c++ {
				out[dst+c] += e.samples[src+c]
			}
		}

		if entryEnd <= windowEnd {
			delete(t.entries, h)
		}
	}

	applyVolume(out, t.volume, t.muted)
	t.rendered = windowEnd
}

// prepare converts a decoded buffer into the device layout
func prepare(buf audio.Buffer, sampleRate, channels int) []int32 {
	samples := remix(buf.Samples, buf.Format.Channels, channels)

	if buf.Format.SampleRate > 0 && buf.Format.SampleRate != sampleRate {
		samples = resample.New(buf.Format.SampleRate, sampleRate, channels).Convert(samples)
	}
	return samples
}

// remix converts between channel counts. Mono is copied to every output
// channel. When folding down, output channel c averages the source channels
// c, c+to, c+2*to and so on. Extra output channels carry the mean of the
// whole source frame.
func remix(samples []int32, from, to int) []int32 {
	if from == to || from <= 0 || to <= 0 {
		return samples
	}

	frames := len(samples) / from
	out := make([]int32, frames*to)
	for f := 0; f < frames; f++ {
		frame := samples[f*from : (f+1)*from]
		dst := out[f*to : (f+1)*to]

		switch {
		case from == 1:
			for c := range dst {
				dst[c] = frame[0]
			}
		case to < from:
			for c := range dst {
				var sum int64
				n := 0
				for k := c; k < from; k += to {
					sum += int64(frame[k])
					n++
				}
				dst[c] = int32(sum / int64(n))
			}
		default:
			var sum int64
			for _, v := range frame {
				sum += int64(v)
			}
			mean := int32(sum / int64(from))
			copy(dst, frame)
			for c := from; c < to; c++ {
				dst[c] = mean
			}
		}
	}
	return out
}

// applyVolume applies volume and mute in place with clipping protection
func applyVolume(samples []int32, volume int, muted bool) {
	multiplier := getVolumeMultiplier(volume, muted)
	if multiplier == 1.0 {
		for i, sample := range samples {
			samples[i] = audio.Clamp24(int64(sample))
		}
		return
	}

	for i, sample := range samples {
		samples[i] = audio.Clamp24(int64(float64(sample) * multiplier))
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
