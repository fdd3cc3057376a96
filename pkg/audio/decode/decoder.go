// ABOUTME: Decoder interface definition and codec factory
// ABOUTME: Common interface for all audio decoders plus New(format)
package decode

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
)

// ErrUnsupportedCodec is returned by New for codecs without a decoder
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Decoder decodes audio in various formats to PCM int32 samples
type Decoder interface {
	// Decode converts one encoded frame to interleaved samples in 24-bit range
	Decode(data []byte) ([]int32, error)

	// Close releases decoder resources
	Close() error
}

// New creates the decoder for format's codec
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	case "flac":
		return NewFLAC(format)
	case "mp3":
		return NewMP3(format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, format.Codec)
	}
}
