// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Converts whole scheduled buffers so their duration is preserved
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64 // input frames per output frame
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Passthrough reports whether the rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// OutputFrames returns the number of frames Convert produces for inputFrames
func (r *Resampler) OutputFrames(inputFrames int) int {
	return int(math.Round(float64(inputFrames) / r.ratio))
}

// Convert resamples one interleaved buffer. The result covers the same
// duration as the input; the last input frame is held at the tail.
func (r *Resampler) Convert(input []int32) []int32 {
	if r.Passthrough() || r.channels <= 0 {
		return input
	}

	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return nil
	}

	outputFrames := r.OutputFrames(inputFrames)
	output := make([]int32, outputFrames*r.channels)
	last := inputFrames - 1

	for outIdx := 0; outIdx < outputFrames; outIdx++ {
		inputPos := float64(outIdx) * r.ratio
		inputIdx := int(inputPos)
		if inputIdx > last {
			inputIdx = last
		}
		next := inputIdx + 1
		if next > last {
			next = last
		}

		frac := inputPos - float64(inputIdx)
		if frac > 1 {
			frac = 1
		}

		for ch := 0; ch < r.channels; ch++ {
			sample1 := input[inputIdx*r.channels+ch]
			sample2 := input[next*r.channels+ch]
			interpolated := float64(sample1)*(1.0-frac) + float64(sample2)*frac
			output[outIdx*r.channels+ch] = int32(math.Round(interpolated))
		}
	}

	return output
}
