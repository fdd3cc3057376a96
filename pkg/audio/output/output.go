// ABOUTME: Audio output sink interface definition
// ABOUTME: Scheduling sink shared by all playback backends
package output

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
)

// ErrNotOpen is returned when scheduling on a sink that was never opened
var ErrNotOpen = errors.New("output not open")

// Handle identifies one scheduled buffer
type Handle uint64

// Sink is an append-only scheduling output. Buffers are submitted with an
// absolute start time on the sink's own clock and can be cancelled until
// they finish playing.
type Sink interface {
	// Open primes (or resumes) the output for a stream format
	Open(format audio.Format) error

	// Now returns the output clock in seconds
	Now() float64

	// Schedule queues buf to start playing at the given output time. A
	// time in the past starts immediately.
	Schedule(buf audio.Buffer, at float64) (Handle, error)

	// Cancel removes a scheduled buffer; finished handles are ignored
	Cancel(h Handle)

	// SetVolume applies software gain (0-100) and mute
	SetVolume(volume int, muted bool)

	// Stop ends the current stream. Backends either keep rendering
	// silence or suspend the device.
	Stop() error

	// Close releases output resources
	Close() error
}

// Backend names accepted by New
const (
	BackendMalgo = "malgo"
	BackendOto   = "oto"
	BackendNull  = "null"
)

// New creates the sink for a backend name
func New(backend string, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "output", "backend", backend)

	switch backend {
	case BackendMalgo, "":
		return NewMalgo(logger), nil
	case BackendOto:
		return NewOto(logger), nil
	case BackendNull:
		return NewNull(logger), nil
	default:
		return nil, fmt.Errorf("unknown output backend %q", backend)
	}
}
