// ABOUTME: High-level Player API for Resonate streaming
// ABOUTME: Composes transport, engine, scheduler, clock filter and output into one client
package resonate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/Resonate-Protocol/resonate-player/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-player/pkg/protocol"
	clocksync "github.com/Resonate-Protocol/resonate-player/pkg/sync"
	"github.com/google/uuid"
)

const (
	DefaultTimeSyncInterval = 5 * time.Second
	DefaultStateInterval    = 5 * time.Second
	DefaultReconnectDelay   = 5 * time.Second
	DefaultDialTimeout      = 10 * time.Second
	DefaultBufferCapacity   = 5 * 1024 * 1024
)

// DefaultFormats lists the formats offered in client/hello, most preferred first
var DefaultFormats = []protocol.AudioFormat{
	// FLAC preferred
	{Codec: "flac", Channels: 2, SampleRate: 48000, BitDepth: 16},
	{Codec: "flac", Channels: 2, SampleRate: 44100, BitDepth: 16},
	// PCM fallback
	{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
	{Codec: "pcm", Channels: 2, SampleRate: 44100, BitDepth: 16},
}

// PlayerConfig holds player configuration
type PlayerConfig struct {
	// ServerAddr is the server address: host:port, http(s):// or ws(s):// URL
	ServerAddr string

	// PlayerID identifies this player to the server (default: random UUID)
	PlayerID string

	// PlayerName is the display name for this player
	PlayerName string

	// Volume is the initial volume (1-100). Zero means the default of 100.
	Volume int

	// Output selects the audio backend: "malgo", "oto" or "null"
	Output string

	// Sink overrides Output with a ready-made sink
	Sink output.Sink

	// DeviceInfo provides device identification
	DeviceInfo DeviceInfo

	// SupportedFormats overrides DefaultFormats
	SupportedFormats []protocol.AudioFormat

	// BufferCapacity is advertised in client/hello (bytes)
	BufferCapacity int

	Lookahead        time.Duration
	Debounce         time.Duration
	TimeSyncInterval time.Duration
	StateInterval    time.Duration
	ReconnectDelay   time.Duration

	Logger   *slog.Logger
	Recorder Recorder

	// OnStateChange is called on the engine goroutine after every state
	// change. It must not call back into the Player synchronously.
	OnStateChange func(Snapshot)

	dial  func(protocol.Handlers) Conn
	clock func() int64
}

// DeviceInfo describes the player device
type DeviceInfo struct {
	ProductName     string
	Manufacturer    string
	SoftwareVersion string
}

// PlayerStats contains playback and sync statistics
type PlayerStats struct {
	SchedulerStats

	Synchronized bool
	SyncSamples  uint32
	SyncError    float64 // µs
	Offset       float64 // µs, server minus client
	Drift        float64
}

// Player provides high-level audio playback from Resonate servers
type Player struct {
	config PlayerConfig
	logger *slog.Logger

	state     *State
	filter    *clocksync.TimeFilter
	sink      output.Sink
	scheduler *Scheduler
	engine    *Engine
}

// NewPlayer creates a new player with the given configuration
func NewPlayer(config PlayerConfig) (*Player, error) {
	// Set defaults
	if config.PlayerID == "" {
		config.PlayerID = uuid.New().String()
	}
	if config.PlayerName == "" {
		config.PlayerName = "Resonate Player"
	}
	if config.Volume == 0 {
		config.Volume = 100
	}
	if config.DeviceInfo.ProductName == "" {
		config.DeviceInfo.ProductName = "Resonate Player"
	}
	if config.DeviceInfo.Manufacturer == "" {
		config.DeviceInfo.Manufacturer = "Resonate"
	}
	if config.DeviceInfo.SoftwareVersion == "" {
		config.DeviceInfo.SoftwareVersion = "1.0.0"
	}
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = DefaultFormats
	}
	if config.BufferCapacity == 0 {
		config.BufferCapacity = DefaultBufferCapacity
	}
	if config.Lookahead == 0 {
		config.Lookahead = DefaultLookahead
	}
	if config.Debounce == 0 {
		config.Debounce = DefaultDebounce
	}
	if config.TimeSyncInterval == 0 {
		config.TimeSyncInterval = DefaultTimeSyncInterval
	}
	if config.StateInterval == 0 {
		config.StateInterval = DefaultStateInterval
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Recorder == nil {
		config.Recorder = nopRecorder{}
	}
	if config.clock == nil {
		config.clock = clocksync.ClientMicros
	}

	logger := config.Logger
	if config.dial == nil {
		transportLogger := logger.With("component", "transport")
		config.dial = func(h protocol.Handlers) Conn {
			return protocol.NewTransport(h, protocol.WithLogger(transportLogger))
		}
	}

	sink := config.Sink
	if sink == nil {
		var err error
		sink, err = output.New(config.Output, logger)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
	}

	p := &Player{
		config: config,
		logger: logger.With("component", "player"),
		filter: clocksync.NewTimeFilter(),
		sink:   sink,
	}

	p.state = NewState(config.Volume, p.onStateChange)
	sink.SetVolume(p.state.Volume(), p.state.Muted())

	p.scheduler = NewScheduler(p.state, sink,
		WithLookahead(config.Lookahead),
		WithDebounce(config.Debounce),
		WithSchedulerLogger(logger.With("component", "scheduler")),
		WithRecorder(config.Recorder),
	)

	p.engine = newEngine(engineConfig{
		hello:            p.hello(),
		timeSyncInterval: config.TimeSyncInterval,
		stateInterval:    config.StateInterval,
		reconnectDelay:   config.ReconnectDelay,
		dialTimeout:      DefaultDialTimeout,
		dial:             config.dial,
		clock:            config.clock,
		logger:           logger.With("component", "engine"),
		recorder:         config.Recorder,
	}, p.state, p.scheduler, p.filter)

	return p, nil
}

func (p *Player) hello() protocol.ClientHello {
	return protocol.ClientHello{
		ClientID:       p.config.PlayerID,
		Name:           p.config.PlayerName,
		Version:        1,
		SupportedRoles: []string{"player"},
		DeviceInfo: &protocol.DeviceInfo{
			ProductName:     p.config.DeviceInfo.ProductName,
			Manufacturer:    p.config.DeviceInfo.Manufacturer,
			SoftwareVersion: p.config.DeviceInfo.SoftwareVersion,
		},
		PlayerSupport: &protocol.PlayerSupport{
			SupportedFormats:  p.config.SupportedFormats,
			BufferCapacity:    p.config.BufferCapacity,
			SupportedCommands: []string{protocol.CommandVolume, protocol.CommandMute},
		},
	}
}

// onStateChange applies gain to the output before notifying the caller
func (p *Player) onStateChange(snap Snapshot) {
	p.sink.SetVolume(snap.Volume, snap.Muted)
	if p.config.OnStateChange != nil {
		p.config.OnStateChange(snap)
	}
}

// ServerURL builds the player endpoint for a server address
func ServerURL(addr, playerID string) (string, error) {
	if addr == "" {
		return "", errors.New("server address is empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server address %q: missing host", addr)
	}

	switch u.Scheme {
	case "ws", "http":
		u.Scheme = "ws"
	case "wss", "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server address %q: unsupported scheme %q", addr, u.Scheme)
	}

	endpoint := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     "/resonate",
		RawQuery: url.Values{"player_id": {playerID}}.Encode(),
	}
	return endpoint.String(), nil
}

// Connect establishes the connection to the server. The handshake and
// time sync continue in the background; a failed dial is retried until
// Disconnect.
func (p *Player) Connect(ctx context.Context) error {
	endpoint, err := ServerURL(p.config.ServerAddr, p.config.PlayerID)
	if err != nil {
		return err
	}
	p.logger.Info("using player id", "player_id", p.config.PlayerID)
	return p.engine.Connect(ctx, endpoint)
}

// Disconnect closes the connection and resets the session
func (p *Player) Disconnect() {
	p.engine.Disconnect()
}

// SetVolume sets the volume (0-100) and reports it to the server
func (p *Player) SetVolume(volume int) {
	p.engine.do(func() {
		p.state.SetVolume(volume)
		p.engine.sendState()
	})
}

// SetMuted sets the mute state and reports it to the server
func (p *Player) SetMuted(muted bool) {
	p.engine.do(func() {
		p.state.SetMuted(muted)
		p.engine.sendState()
	})
}

// PlayerID returns the id sent to the server
func (p *Player) PlayerID() string {
	return p.config.PlayerID
}

// Volume returns the current volume
func (p *Player) Volume() int {
	return p.state.Volume()
}

// Muted returns the mute state
func (p *Player) Muted() bool {
	return p.state.Muted()
}

// IsPlaying reports whether a stream is playing
func (p *Player) IsPlaying() bool {
	return p.state.IsPlaying()
}

// PlayerState returns "synchronized" or "error"
func (p *Player) PlayerState() string {
	return p.state.PlayerState()
}

// CurrentFormat returns the active stream format
func (p *Player) CurrentFormat() (audio.Format, bool) {
	return p.state.Format()
}

// IsConnected reports whether the transport is open
func (p *Player) IsConnected() bool {
	return p.engine.conn.IsConnected()
}

// Status returns the connection state and whether a stream is active
func (p *Player) Status() (ConnState, bool) {
	return p.engine.Status()
}

// Snapshot returns the current session state
func (p *Player) Snapshot() Snapshot {
	return p.state.Snapshot()
}

// Stats returns playback statistics
func (p *Player) Stats() PlayerStats {
	return PlayerStats{
		SchedulerStats: p.scheduler.Stats(),
		Synchronized:   p.filter.IsSynchronized(),
		SyncSamples:    p.filter.Count(),
		SyncError:      p.filter.Error(),
		Offset:         p.filter.Offset(),
		Drift:          p.filter.Drift(),
	}
}

// ServerNow returns the current time in the server's clock domain (µs)
func (p *Player) ServerNow() int64 {
	return p.filter.ComputeServerTime(p.config.clock())
}

// Close disconnects and releases all resources
func (p *Player) Close() error {
	p.engine.Close()
	if err := p.scheduler.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
