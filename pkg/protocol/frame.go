// ABOUTME: Binary frame codec for audio chunks
// ABOUTME: Parses the role/slot byte and big-endian server timestamp header
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// BinaryMessageHeaderSize is the size of binary message header (type byte + timestamp)
	BinaryMessageHeaderSize = 1 + 8

	// RolePlayer is the role type of player frames (upper 6 bits of byte 0)
	RolePlayer = 0

	// SlotAudio is the player slot carrying audio data (lower 2 bits of byte 0)
	SlotAudio = 0
)

// ErrShortFrame is returned for binary messages shorter than the header
var ErrShortFrame = errors.New("binary message too short")

// ErrNotAudioFrame is returned for binary messages that are not player audio
var ErrNotAudioFrame = errors.New("not an audio frame")

// AudioChunk represents a timestamped audio frame
type AudioChunk struct {
	Timestamp int64  // Microseconds, server clock
	Data      []byte // Encoded audio, aliases the frame
}

// FrameType packs a role and slot into the leading byte
func FrameType(role, slot uint8) byte {
	return role<<2 | slot&0x03
}

// SplitFrameType returns the role (6 bits) and slot (2 bits) of the leading byte
func SplitFrameType(b byte) (role, slot uint8) {
	return b >> 2, b & 0x03
}

// ParseAudioChunk decodes a binary message carrying player audio.
func ParseAudioChunk(data []byte) (AudioChunk, error) {
	if len(data) < BinaryMessageHeaderSize {
		return AudioChunk{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}

	if data[0] != FrameType(RolePlayer, SlotAudio) {
		role, slot := SplitFrameType(data[0])
		return AudioChunk{}, fmt.Errorf("%w: role=%d slot=%d", ErrNotAudioFrame, role, slot)
	}

	return AudioChunk{
		Timestamp: int64(binary.BigEndian.Uint64(data[1:BinaryMessageHeaderSize])),
		Data:      data[BinaryMessageHeaderSize:],
	}, nil
}

// EncodeAudioChunk builds the binary message for a chunk
func EncodeAudioChunk(chunk AudioChunk) []byte {
	out := make([]byte, BinaryMessageHeaderSize+len(chunk.Data))
	out[0] = FrameType(RolePlayer, SlotAudio)
	binary.BigEndian.PutUint64(out[1:BinaryMessageHeaderSize], uint64(chunk.Timestamp))
	copy(out[BinaryMessageHeaderSize:], chunk.Data)
	return out
}
