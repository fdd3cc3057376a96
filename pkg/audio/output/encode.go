// ABOUTME: Sample packing for device buffers
// ABOUTME: Converts 24-bit range int32 samples to little-endian device formats
package output

import "github.com/Resonate-Protocol/resonate-player/pkg/audio"

// deviceBitDepth picks the device sample size for a stream bit depth
func deviceBitDepth(bitDepth int) int {
	switch bitDepth {
	case 24, 32:
		return bitDepth
	default:
		return 16
	}
}

// encodeSamples packs samples into output at the given bit depth
func encodeSamples(output []byte, samples []int32, bitDepth int) {
	switch bitDepth {
	case 24:
		for i, sample := range samples {
			b := audio.SampleTo24Bit(sample)
			copy(output[i*3:], b[:])
		}
	case 32:
		for i, sample := range samples {
			// Shift 24-bit value to upper bits of 32-bit container
			sample32 := sample << 8
			output[i*4] = byte(sample32)
			output[i*4+1] = byte(sample32 >> 8)
			output[i*4+2] = byte(sample32 >> 16)
			output[i*4+3] = byte(sample32 >> 24)
		}
	default:
		for i, sample := range samples {
			sample16 := audio.SampleToInt16(sample)
			output[i*2] = byte(sample16)
			output[i*2+1] = byte(sample16 >> 8)
		}
	}
}
