// ABOUTME: Event hooks for playback and protocol metrics
// ABOUTME: The default recorder discards everything
package resonate

// Reasons passed to Recorder.ChunkDropped
const (
	DropMalformed = "malformed"
	DropNoFormat  = "no_format"
	DropDecode    = "decode"
	DropOutput    = "output"
	DropFlushed   = "flushed"
)

// Recorder receives counters from the player. Implementations must be safe
// for concurrent use.
type Recorder interface {
	ChunkReceived()
	ChunkScheduled(late bool)
	ChunkDropped(reason string)
	ControlMessage(msgType string)
	Reconnect()
	SyncUpdated(errorMicros, offsetMicros float64)
}

type nopRecorder struct{}

func (nopRecorder) ChunkReceived()               {}
func (nopRecorder) ChunkScheduled(bool)          {}
func (nopRecorder) ChunkDropped(string)          {}
func (nopRecorder) ControlMessage(string)        {}
func (nopRecorder) Reconnect()                   {}
func (nopRecorder) SyncUpdated(float64, float64) {}
