// ABOUTME: Test doubles for the player packages
// ABOUTME: In-memory connection, output sink and recorder
package resonate

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/Resonate-Protocol/resonate-player/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-player/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var pcm48k = audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}

// pcmFrame builds an audio frame carrying frames stereo 16-bit samples
func pcmFrame(timestamp int64, frames int) []byte {
	data := make([]byte, frames*4)
	for i := 0; i < frames*2; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(i+1))
	}
	return protocol.EncodeAudioChunk(protocol.AudioChunk{Timestamp: timestamp, Data: data})
}

type scheduleCall struct {
	handle output.Handle
	buf    audio.Buffer
	at     float64
}

type fakeSink struct {
	mu        sync.Mutex
	now       float64
	next      output.Handle
	calls     []scheduleCall
	cancelled []output.Handle
	opened    []audio.Format
	openErr   error
	stops     int
	closed    bool
	volume    int
	muted     bool
}

var _ output.Sink = (*fakeSink)(nil)

func newFakeSink() *fakeSink {
	return &fakeSink{}
}

func (s *fakeSink) Open(format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = append(s.opened, format)
	return nil
}

func (s *fakeSink) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeSink) setNow(now float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *fakeSink) Schedule(buf audio.Buffer, at float64) (output.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.calls = append(s.calls, scheduleCall{handle: s.next, buf: buf, at: at})
	return s.next, nil
}

func (s *fakeSink) Cancel(h output.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, h)
}

func (s *fakeSink) SetVolume(volume int, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = volume
	s.muted = muted
}

func (s *fakeSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) scheduled() []scheduleCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduleCall(nil), s.calls...)
}

func (s *fakeSink) cancelledHandles() []output.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]output.Handle(nil), s.cancelled...)
}

func (s *fakeSink) openedFormats() []audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Format(nil), s.opened...)
}

func (s *fakeSink) gain() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume, s.muted
}

func (s *fakeSink) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// fakeConn stands in for the WebSocket transport. Its handlers run
// synchronously, like the real transport's open callback.
type fakeConn struct {
	h protocol.Handlers

	mu        sync.Mutex
	connected bool
	connects  int
	dialErr   error
	sent      []protocol.Message
}

var _ Conn = (*fakeConn)(nil)

func (c *fakeConn) Connect(_ context.Context, _ string) error {
	c.mu.Lock()
	c.connects++
	if c.dialErr != nil {
		err := c.dialErr
		c.mu.Unlock()
		return err
	}
	c.connected = true
	c.mu.Unlock()

	c.h.OnOpen()
	return nil
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()

	if was {
		c.h.OnClose(true)
	}
}

func (c *fakeConn) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return protocol.ErrNotConnected
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) setDialErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialErr = err
}

func (c *fakeConn) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// messages returns the sent messages of msgType, or all when msgType is empty
func (c *fakeConn) messages(msgType string) []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Message
	for _, m := range c.sent {
		if msgType == "" || m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// serverSend delivers a control message as the server would
func (c *fakeConn) serverSend(t *testing.T, msgType string, payload any) {
	t.Helper()
	data, err := json.Marshal(protocol.Message{Type: msgType, Payload: payload})
	require.NoError(t, err)
	c.h.OnText(data)
}

// drop simulates the server going away
func (c *fakeConn) drop() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.h.OnClose(false)
}

type fakeRecorder struct {
	mu         sync.Mutex
	received   int
	scheduled  int
	late       int
	dropped    map[string]int
	control    map[string]int
	reconnects int
	syncs      int
}

var _ Recorder = (*fakeRecorder)(nil)

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{dropped: map[string]int{}, control: map[string]int{}}
}

func (r *fakeRecorder) ChunkReceived() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received++
}

func (r *fakeRecorder) ChunkScheduled(late bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled++
	if late {
		r.late++
	}
}

func (r *fakeRecorder) ChunkDropped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func (r *fakeRecorder) ControlMessage(msgType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.control[msgType]++
}

func (r *fakeRecorder) Reconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects++
}

func (r *fakeRecorder) SyncUpdated(float64, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs++
}

func (r *fakeRecorder) reconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconnects
}

func (r *fakeRecorder) droppedCount(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[reason]
}

func (r *fakeRecorder) lateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.late
}

func (r *fakeRecorder) controlCount(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.control[msgType]
}
