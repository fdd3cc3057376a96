// ABOUTME: Tests for the decoder factory
// ABOUTME: Verifies codec dispatch and the unsupported codec error
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDispatchesByCodec(t *testing.T) {
	tests := []struct {
		format audio.Format
		want   Decoder
	}{
		{audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}, &PCMDecoder{}},
		{audio.Format{Codec: "flac", SampleRate: 44100, Channels: 2, BitDepth: 16}, &FLACDecoder{}},
		{audio.Format{Codec: "mp3", SampleRate: 44100, Channels: 2}, &MP3Decoder{}},
	}

	for _, tt := range tests {
		t.Run(tt.format.Codec, func(t *testing.T) {
			dec, err := New(tt.format)
			require.NoError(t, err)
			assert.IsType(t, tt.want, dec)
			assert.NoError(t, dec.Close())
		})
	}
}

func TestNewUnsupportedCodec(t *testing.T) {
	dec, err := New(audio.Format{Codec: "aac", SampleRate: 48000, Channels: 2})
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
	assert.Nil(t, dec)
}
