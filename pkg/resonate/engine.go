// ABOUTME: Protocol state machine for the player role
// ABOUTME: Runs the handshake, time sync, state reports, stream lifecycle and reconnects
package resonate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/Resonate-Protocol/resonate-player/pkg/protocol"
	clocksync "github.com/Resonate-Protocol/resonate-player/pkg/sync"
)

// ConnState is the engine's connection state
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateAwaitingHello
	StateActive
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting-hello"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Conn is the duplex connection the engine drives. protocol.Transport is
// the production implementation.
type Conn interface {
	Connect(ctx context.Context, url string) error
	Disconnect()
	Send(msg protocol.Message) error
	IsConnected() bool
}

// eventQueueSize bounds the events buffered between the transport and the
// engine goroutine
const eventQueueSize = 256

type engineConfig struct {
	hello            protocol.ClientHello
	timeSyncInterval time.Duration
	stateInterval    time.Duration
	reconnectDelay   time.Duration
	dialTimeout      time.Duration
	dial             func(protocol.Handlers) Conn
	clock            func() int64
	logger           *slog.Logger
	recorder         Recorder
}

// Engine processes transport events on a single goroutine so control
// messages are handled strictly in delivery order.
type Engine struct {
	cfg       engineConfig
	conn      Conn
	state     *State
	scheduler *Scheduler
	filter    *clocksync.TimeFilter
	logger    *slog.Logger

	events chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	connState ConnState
	streaming bool
	url       string
	retry     bool
	reconnect *time.Timer
}

func newEngine(cfg engineConfig, state *State, scheduler *Scheduler, filter *clocksync.TimeFilter) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:       cfg,
		state:     state,
		scheduler: scheduler,
		filter:    filter,
		logger:    cfg.logger,
		events:    make(chan func(), eventQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	e.conn = cfg.dial(protocol.Handlers{
		OnOpen:   func() { e.post(e.handleOpen) },
		OnText:   func(data []byte) { e.post(func() { e.handleText(data) }) },
		OnBinary: func(data []byte) { e.post(func() { e.scheduler.HandleFrame(data) }) },
		OnError: func(err error) {
			e.logger.Warn("transport error", "error", err)
		},
		OnClose: func(requested bool) { e.post(func() { e.handleClose(requested) }) },
	})

	go e.run()
	return e
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case fn := <-e.events:
			fn()
		case <-e.ctx.Done():
			return
		}
	}
}

// post queues fn for the engine goroutine
func (e *Engine) post(fn func()) {
	select {
	case e.events <- fn:
	case <-e.ctx.Done():
	}
}

// do runs fn on the engine goroutine and waits for it to finish
func (e *Engine) do(fn func()) {
	finished := make(chan struct{})
	e.post(func() {
		fn()
		close(finished)
	})
	select {
	case <-finished:
	case <-e.ctx.Done():
	}
}

func (e *Engine) setConnState(s ConnState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connState != s {
		e.logger.Debug("connection state", "from", e.connState, "to", s)
	}
	e.connState = s
}

func (e *Engine) setStreaming(streaming bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streaming = streaming
}

// Status returns the connection state and whether a stream is active
func (e *Engine) Status() (ConnState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connState, e.streaming
}

// Connect dials url. When the dial fails the engine keeps retrying every
// reconnect delay until Disconnect.
func (e *Engine) Connect(ctx context.Context, url string) error {
	// the transport swaps a live session out without a close callback
	if e.conn.IsConnected() {
		e.do(e.teardown)
	}

	e.mu.Lock()
	e.url = url
	e.retry = true
	e.stopReconnectLocked()
	e.connState = StateConnecting
	e.mu.Unlock()

	return e.dial(ctx)
}

func (e *Engine) dial(ctx context.Context) error {
	e.mu.Lock()
	url := e.url
	e.mu.Unlock()

	e.logger.Info("connecting", "url", url)
	if err := e.conn.Connect(ctx, url); err != nil {
		e.scheduleReconnect()
		return fmt.Errorf("connect to %s: %w", url, err)
	}

	// Disconnect may have raced the dial
	e.mu.Lock()
	retry := e.retry
	e.mu.Unlock()
	if !retry {
		e.conn.Disconnect()
	}
	return nil
}

func (e *Engine) scheduleReconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.retry || e.ctx.Err() != nil {
		return
	}
	e.stopReconnectLocked()
	e.connState = StateConnecting

	e.logger.Info("reconnecting", "delay", e.cfg.reconnectDelay)
	e.reconnect = time.AfterFunc(e.cfg.reconnectDelay, func() {
		e.mu.Lock()
		retry := e.retry
		e.mu.Unlock()
		if !retry {
			return
		}

		e.cfg.recorder.Reconnect()
		ctx, cancel := context.WithTimeout(e.ctx, e.cfg.dialTimeout)
		defer cancel()
		if err := e.dial(ctx); err != nil {
			e.logger.Warn("reconnect failed", "error", err)
		}
	})
}

func (e *Engine) stopReconnectLocked() {
	if e.reconnect != nil {
		e.reconnect.Stop()
		e.reconnect = nil
	}
}

// Disconnect stops the session: timers, transport, scheduled audio, clock
// filter and session state, in that order. No reconnect follows.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	e.retry = false
	e.stopReconnectLocked()
	e.mu.Unlock()

	e.do(func() {
		e.state.CancelTimers()
		e.conn.Disconnect()
		if err := e.scheduler.Stop(); err != nil {
			e.logger.Warn("stopping output failed", "error", err)
		}
		e.filter.Reset()
		e.state.Reset()
		e.setStreaming(false)
		e.setConnState(StateIdle)
	})
}

// Close stops the engine goroutine. The engine cannot be reused.
func (e *Engine) Close() {
	e.Disconnect()
	e.cancel()
	<-e.done
}

func (e *Engine) send(msgType string, payload any) {
	if err := e.conn.Send(protocol.Message{Type: msgType, Payload: payload}); err != nil {
		e.logger.Debug("send failed", "type", msgType, "error", err)
	}
}

func (e *Engine) sendHello() {
	e.send(protocol.TypeClientHello, e.cfg.hello)
}

func (e *Engine) sendTimeSync() {
	e.send(protocol.TypeClientTime, protocol.ClientTime{ClientTransmitted: e.cfg.clock()})
}

func (e *Engine) sendState() {
	snap := e.state.Snapshot()
	e.send(protocol.TypeClientState, protocol.ClientStateMessage{
		Player: &protocol.PlayerState{
			State:  snap.PlayerState,
			Volume: snap.Volume,
			Muted:  snap.Muted,
		},
	})
}

func (e *Engine) handleOpen() {
	e.logger.Info("connected", "client_id", e.cfg.hello.ClientID)
	e.setConnState(StateAwaitingHello)
	e.sendHello()
}

// teardown drops everything tied to the current session
func (e *Engine) teardown() {
	e.state.CancelTimers()
	e.filter.Reset()
	if err := e.scheduler.Stop(); err != nil {
		e.logger.Warn("stopping output failed", "error", err)
	}
	e.state.ClearFormat()
	e.state.SetPlaying(false)
	e.setStreaming(false)
}

func (e *Engine) handleClose(requested bool) {
	e.teardown()

	if requested {
		e.logger.Info("disconnected")
		e.setConnState(StateIdle)
		return
	}

	e.logger.Warn("connection lost")
	e.scheduleReconnect()
}

func (e *Engine) handleText(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		e.logger.Warn("dropping malformed message", "error", err)
		return
	}
	e.cfg.recorder.ControlMessage(env.Type)

	var err error
	switch env.Type {
	case protocol.TypeServerHello:
		err = e.handleServerHello(env)
	case protocol.TypeServerTime:
		err = e.handleServerTime(env)
	case protocol.TypeStreamStart:
		err = e.handleStreamStart(env)
	case protocol.TypeStreamUpdate:
		err = e.handleStreamUpdate(env)
	case protocol.TypeStreamClear:
		e.logger.Debug("stream cleared")
		e.scheduler.Flush()
	case protocol.TypeStreamEnd:
		e.handleStreamEnd()
	case protocol.TypeServerCommand:
		err = e.handleServerCommand(env)
	case protocol.TypeServerState:
		var msg protocol.ServerStateMessage
		if err = env.DecodePayload(&msg); err == nil && msg.Metadata != nil {
			e.logger.Debug("server state", "metadata", msg.Metadata.String())
		}
	case protocol.TypeGroupUpdate:
		var msg protocol.GroupUpdate
		err = env.DecodePayload(&msg)
	default:
		e.logger.Debug("ignoring message", "type", env.Type)
	}

	if err != nil {
		e.logger.Warn("dropping malformed message", "type", env.Type, "error", err)
	}
}

func (e *Engine) handleServerHello(env protocol.Envelope) error {
	var hello protocol.ServerHello
	if err := env.DecodePayload(&hello); err != nil {
		return err
	}
	e.logger.Info("handshake complete", "server", hello.Name, "server_id", hello.ServerID)

	e.sendState()
	e.sendTimeSync()
	e.state.ArmTimers(
		e.cfg.timeSyncInterval, func() { e.post(e.sendTimeSync) },
		e.cfg.stateInterval, func() { e.post(e.sendState) },
	)

	e.setStreaming(false)
	e.setConnState(StateActive)
	return nil
}

func (e *Engine) handleServerTime(env protocol.Envelope) error {
	t4 := e.cfg.clock()

	var msg protocol.ServerTime
	if err := env.DecodePayload(&msg); err != nil {
		return err
	}

	t1 := float64(msg.ClientTransmitted)
	t2 := float64(msg.ServerReceived)
	t3 := float64(msg.ServerTransmitted)
	measurement := ((t2 - t1) + (t3 - float64(t4))) / 2
	maxError := ((float64(t4) - t1) - (t3 - t2)) / 2

	e.filter.Update(measurement, maxError, t4)
	e.cfg.recorder.SyncUpdated(e.filter.Error(), e.filter.Offset())

	e.logger.Debug("clock sync",
		"offset_us", e.filter.Offset(),
		"error_us", e.filter.Error(),
		"synchronized", e.filter.IsSynchronized())
	return nil
}

// formatFromWire converts a wire stream format, decoding the codec header
func formatFromWire(f protocol.StreamFormat) (audio.Format, error) {
	format := audio.Format{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
	}
	if f.CodecHeader != "" {
		header, err := base64.StdEncoding.DecodeString(f.CodecHeader)
		if err != nil {
			return audio.Format{}, fmt.Errorf("codec header: %w", err)
		}
		format.CodecHeader = header
	}
	return format, nil
}

// formatToWire is the inverse of formatFromWire
func formatToWire(f audio.Format) protocol.StreamFormat {
	wire := protocol.StreamFormat{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
	}
	if len(f.CodecHeader) > 0 {
		wire.CodecHeader = base64.StdEncoding.EncodeToString(f.CodecHeader)
	}
	return wire
}

func (e *Engine) handleStreamStart(env protocol.Envelope) error {
	var msg protocol.StreamStart
	if err := env.DecodePayload(&msg); err != nil {
		return err
	}
	if msg.Player == nil {
		e.logger.Warn("stream/start without player format")
		return nil
	}

	format, err := formatFromWire(*msg.Player)
	if err != nil {
		return err
	}
	e.logger.Info("stream starting", "format", format.String())

	e.state.SetFormat(format)
	e.scheduler.Flush()
	if !e.prepare(format) {
		return nil
	}

	e.state.SetPlaying(true)
	e.setStreaming(true)
	return nil
}

// prepare readies decoding and output for format. On failure the player
// reports the error state to the server.
func (e *Engine) prepare(format audio.Format) bool {
	if err := e.scheduler.Prepare(format); err != nil {
		e.logger.Error("cannot play stream", "format", format.String(), "error", err)
		e.state.SetPlayerState(protocol.PlayerStateError)
		e.state.SetPlaying(false)
		e.sendState()
		return false
	}

	if e.state.PlayerState() != protocol.PlayerStateSynchronized {
		e.state.SetPlayerState(protocol.PlayerStateSynchronized)
		e.sendState()
	}
	return true
}

func (e *Engine) handleStreamUpdate(env protocol.Envelope) error {
	var msg protocol.StreamUpdate
	if err := env.DecodePayload(&msg); err != nil {
		return err
	}

	current, ok := e.state.Format()
	if msg.Player == nil || !ok {
		return nil
	}

	merged, err := formatFromWire(msg.Player.Apply(formatToWire(current)))
	if err != nil {
		return err
	}
	e.state.SetFormat(merged)
	e.logger.Info("stream format updated", "format", merged.String())

	if !merged.Equal(current) && e.prepare(merged) {
		e.state.SetPlaying(true)
	}
	return nil
}

func (e *Engine) handleStreamEnd() {
	e.logger.Info("stream ended")

	if err := e.scheduler.Stop(); err != nil {
		e.logger.Warn("stopping output failed", "error", err)
	}
	e.state.ClearFormat()
	e.state.SetPlaying(false)
	e.setStreaming(false)
	e.sendState()
}

func (e *Engine) handleServerCommand(env protocol.Envelope) error {
	var msg protocol.ServerCommandMessage
	if err := env.DecodePayload(&msg); err != nil {
		return err
	}
	cmd := msg.Player
	if cmd == nil {
		return nil
	}

	switch cmd.Command {
	case protocol.CommandVolume:
		if cmd.Volume != nil {
			e.state.SetVolume(*cmd.Volume)
		}
	case protocol.CommandMute:
		if cmd.Mute != nil {
			e.state.SetMuted(*cmd.Mute)
		}
	default:
		e.logger.Debug("ignoring command", "command", cmd.Command)
	}

	e.sendState()
	return nil
}
