// ABOUTME: Malgo-based audio output with 24-bit support
// ABOUTME: Keep-alive backend: the device renders silence between streams
package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/gen2brain/malgo"
)

// Malgo output implementation using malgo/miniaudio library. Once opened the
// device keeps running after a stream ends so the output clock never stops.
type Malgo struct {
	logger   *slog.Logger
	timeline *Timeline

	mu         sync.Mutex
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	channels   int
	bitDepth   int

	// scratch is only touched from the device callback
	scratch []int32
}

// NewMalgo creates a new Malgo output
func NewMalgo(logger *slog.Logger) *Malgo {
	return &Malgo{
		logger:   logger,
		timeline: NewTimeline(),
	}
}

// Open initializes (or reuses) the device for format
func (m *Malgo) Open(format audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bitDepth := deviceBitDepth(format.BitDepth)

	// If already initialized with same format, reuse
	if m.device != nil && m.sampleRate == format.SampleRate && m.channels == format.Channels && m.bitDepth == bitDepth {
		if !m.device.IsStarted() {
			if err := m.device.Start(); err != nil {
				return fmt.Errorf("failed to restart device: %w", err)
			}
		}
		return nil
	}

	if m.device != nil {
		m.logger.Info("format change, reinitializing device",
			"from_rate", m.sampleRate, "from_channels", m.channels, "from_bits", m.bitDepth,
			"to_rate", format.SampleRate, "to_channels", format.Channels, "to_bits", bitDepth)
		m.closeDevice()
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	var deviceFormat malgo.FormatType
	switch bitDepth {
	case 24:
		deviceFormat = malgo.FormatS24
	case 32:
		deviceFormat = malgo.FormatS32
	default:
		deviceFormat = malgo.FormatS16
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = deviceFormat
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	channels := format.Channels
	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, _ []byte, frameCount uint32) {
			m.dataCallback(pOutputSample, frameCount, channels, bitDepth)
		},
	}

	// Keep the clock continuous across the device switch
	m.timeline.Configure(format.SampleRate, format.Channels)

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.sampleRate = format.SampleRate
	m.channels = format.Channels
	m.bitDepth = bitDepth

	m.logger.Info("audio output initialized",
		"rate", format.SampleRate, "channels", format.Channels, "bits", bitDepth, "format", formatName(deviceFormat))
	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32, channels, bitDepth int) {
	totalSamples := int(frameCount) * channels
	if cap(m.scratch) < totalSamples {
		m.scratch = make([]int32, totalSamples)
	}
	samples := m.scratch[:totalSamples]

	m.timeline.Render(samples)
	encodeSamples(pOutput, samples, bitDepth)
}

// Now returns the output clock in seconds
func (m *Malgo) Now() float64 {
	return m.timeline.Now()
}

// Schedule queues buf at output time at
func (m *Malgo) Schedule(buf audio.Buffer, at float64) (Handle, error) {
	rate, channels := m.timeline.Layout()
	if rate == 0 {
		return 0, ErrNotOpen
	}
	return m.timeline.Add(prepare(buf, rate, channels), at)
}

// Cancel removes a scheduled buffer
func (m *Malgo) Cancel(h Handle) {
	m.timeline.Remove(h)
}

// SetVolume sets software gain
func (m *Malgo) SetVolume(volume int, muted bool) {
	m.timeline.SetVolume(volume, muted)
}

// Stop drops scheduled audio; the device keeps rendering silence
func (m *Malgo) Stop() error {
	dropped := m.timeline.Clear()
	m.logger.Debug("stream stopped, keeping device alive", "dropped", dropped)
	return nil
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			m.logger.Warn("malgo context uninit error", "error", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device == nil {
		return
	}
	if err := m.device.Stop(); err != nil {
		m.logger.Warn("device stop error", "error", err)
	}
	m.device.Uninit()
	m.device = nil
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
