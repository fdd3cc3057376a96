// ABOUTME: Tests for the linear resampler
// ABOUTME: Checks output length, interpolation and passthrough
package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertPassthrough(t *testing.T) {
	r := New(48000, 48000, 2)
	in := []int32{1, 2, 3, 4}

	assert.True(t, r.Passthrough())
	assert.Equal(t, in, r.Convert(in))
}

func TestConvertPreservesDuration(t *testing.T) {
	r := New(44100, 48000, 2)

	// 10ms at 44.1kHz becomes 10ms at 48kHz
	out := r.Convert(make([]int32, 441*2))
	assert.Len(t, out, 480*2)

	down := New(48000, 44100, 1)
	assert.Len(t, down.Convert(make([]int32, 4800)), 4410)
}

func TestConvertUpsampleInterpolates(t *testing.T) {
	r := New(1, 2, 1)

	out := r.Convert([]int32{0, 100, 200})
	require.Len(t, out, 6)
	assert.Equal(t, []int32{0, 50, 100, 150, 200, 200}, out)
}

func TestConvertDownsampleKeepsChannelsApart(t *testing.T) {
	r := New(2, 1, 2)

	out := r.Convert([]int32{10, -10, 20, -20, 30, -30, 40, -40})
	assert.Equal(t, []int32{10, -10, 30, -30}, out)
}

func TestConvertEmpty(t *testing.T) {
	r := New(44100, 48000, 2)
	assert.Empty(t, r.Convert(nil))
	assert.Empty(t, r.Convert([]int32{1}))
}
