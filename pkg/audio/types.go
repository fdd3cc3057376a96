// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats, decoded buffers and sample conversions
package audio

import (
	"bytes"
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes an audio stream
type Format struct {
	Codec       string
	SampleRate  int
	Channels    int
	BitDepth    int
	CodecHeader []byte // Out-of-band header (FLAC STREAMINFO, etc.)
}

// Equal reports whether two formats describe the same stream layout
func (f Format) Equal(o Format) bool {
	return f.Codec == o.Codec &&
		f.SampleRate == o.SampleRate &&
		f.Channels == o.Channels &&
		f.BitDepth == o.BitDepth &&
		bytes.Equal(f.CodecHeader, o.CodecHeader)
}

// String renders the format for logs and the status view
func (f Format) String() string {
	if f.BitDepth > 0 {
		return fmt.Sprintf("%s %dHz %dch %dbit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
	}
	return fmt.Sprintf("%s %dHz %dch", f.Codec, f.SampleRate, f.Channels)
}

// Buffer represents decoded PCM audio
type Buffer struct {
	Timestamp int64   // Server timestamp (microseconds)
	Samples   []int32 // Interleaved, 24-bit range
	Format    Format
}

// Frames returns the number of sample frames (samples per channel)
func (b Buffer) Frames() int {
	if b.Format.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback length of the buffer
func (b Buffer) Duration() time.Duration {
	if b.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFromInt32 scales a full-range 32-bit sample into 24-bit range
func SampleFromInt32(sample int32) int32 {
	return sample >> 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// ScaleTo24Bit shifts a sample of the given bit depth into 24-bit range
func ScaleTo24Bit(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	case bitDepth > 24:
		return sample >> (bitDepth - 24)
	default:
		return sample
	}
}

// Clamp24 limits a sample to the 24-bit range
func Clamp24(sample int64) int32 {
	if sample > Max24Bit {
		return Max24Bit
	}
	if sample < Min24Bit {
		return Min24Bit
	}
	return int32(sample)
}
