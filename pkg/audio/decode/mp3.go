// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes self-contained MP3 frames to int32 samples
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MP3 audio. go-mp3 always produces 16-bit stereo, so
// mono streams keep the left channel only.
type MP3Decoder struct {
	channels int
}

// NewMP3 creates a new MP3 decoder
func NewMP3(format audio.Format) (Decoder, error) {
	if format.Codec != "mp3" {
		return nil, fmt.Errorf("invalid codec for MP3 decoder: %s", format.Codec)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return nil, fmt.Errorf("unsupported mp3 channel count: %d", format.Channels)
	}

	return &MP3Decoder{channels: format.Channels}, nil
}

// Decode converts MP3 frames to int32 samples
func (d *MP3Decoder) Decode(data []byte) ([]int32, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	// 4 bytes per stereo frame
	numFrames := len(pcm) / 4
	samples := make([]int32, 0, numFrames*d.channels)
	for i := 0; i < numFrames; i++ {
		left := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		samples = append(samples, audio.SampleFromInt16(left))
		if d.channels == 2 {
			right := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
			samples = append(samples, audio.SampleFromInt16(right))
		}
	}

	return samples, nil
}

// Close releases decoder resources
func (d *MP3Decoder) Close() error {
	return nil
}
