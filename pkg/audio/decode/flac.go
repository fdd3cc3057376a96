// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC frames by prepending the out-of-band stream header
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC audio. The server sends bare frames and the
// stream header (signature and STREAMINFO) once in the stream format.
type FLACDecoder struct {
	header []byte
}

// NewFLAC creates a new FLAC decoder
func NewFLAC(format audio.Format) (Decoder, error) {
	if format.Codec != "flac" {
		return nil, fmt.Errorf("invalid codec for FLAC decoder: %s", format.Codec)
	}

	return &FLACDecoder{
		header: format.CodecHeader,
	}, nil
}

// Decode converts FLAC frames to interleaved int32 samples
func (d *FLACDecoder) Decode(data []byte) ([]int32, error) {
	r := io.MultiReader(bytes.NewReader(d.header), bytes.NewReader(data))

	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("flac stream header: %w", err)
	}
	defer stream.Close()

	var samples []int32
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flac frame: %w", err)
		}

		bps := int(f.BitsPerSample)
		n := 0
		if len(f.Subframes) > 0 {
			n = len(f.Subframes[0].Samples)
		}
		for i := 0; i < n; i++ {
			for _, sub := range f.Subframes {
				samples = append(samples, audio.ScaleTo24Bit(sub.Samples[i], bps))
			}
		}
	}

	return samples, nil
}

// Close releases decoder resources
func (d *FLACDecoder) Close() error {
	return nil
}
