// ABOUTME: Session state holder for the player
// ABOUTME: Owns volume, mute, playback flags, stream format, anchor and periodic timers
package resonate

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/Resonate-Protocol/resonate-player/pkg/protocol"
)

// Snapshot is the state passed to change hooks
type Snapshot struct {
	IsPlaying   bool
	Volume      int
	Muted       bool
	PlayerState string // "synchronized" or "error"
}

// StreamAnchor pins a stream's first server timestamp to an output clock time
type StreamAnchor struct {
	StartServerTime int64   // Server time of the earliest chunk (µs)
	StartOutputTime float64 // Output clock time that chunk plays at (s)
	Generation      uint32
}

// periodic runs fn on a ticker until cancelled
type periodic struct {
	stop chan struct{}
}

func startPeriodic(interval time.Duration, fn func()) *periodic {
	p := &periodic{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-p.stop:
				return
			}
		}
	}()
	return p
}

func (p *periodic) cancel() {
	close(p.stop)
}

// State is the single owner of mutable session state. Every setter invokes
// the change hook synchronously, after the state lock is released.
type State struct {
	onChange      func(Snapshot)
	initialVolume int

	mu          sync.Mutex
	volume      int
	muted       bool
	playerState string
	isPlaying   bool
	format      *audio.Format

	anchor     *StreamAnchor
	generation uint32

	timeSync    *periodic
	stateReport *periodic
}

// NewState creates session state starting at volume. onChange may be nil.
func NewState(volume int, onChange func(Snapshot)) *State {
	volume = clampVolume(volume)
	return &State{
		onChange:      onChange,
		initialVolume: volume,
		volume:        volume,
		playerState:   protocol.PlayerStateSynchronized,
	}
}

func clampVolume(v int) int {
	return max(0, min(100, v))
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		IsPlaying:   s.isPlaying,
		Volume:      s.volume,
		Muted:       s.muted,
		PlayerState: s.playerState,
	}
}

// Snapshot returns the current state
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// mutate applies fn under the lock and then notifies
func (s *State) mutate(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(snap)
	}
}

// SetVolume sets the volume, clamped to 0-100
func (s *State) SetVolume(v int) {
	s.mutate(func() { s.volume = clampVolume(v) })
}

// SetMuted sets the mute flag
func (s *State) SetMuted(muted bool) {
	s.mutate(func() { s.muted = muted })
}

// SetPlayerState sets the reported player state
func (s *State) SetPlayerState(state string) {
	s.mutate(func() { s.playerState = state })
}

// SetPlaying sets whether a stream is playing
func (s *State) SetPlaying(playing bool) {
	s.mutate(func() { s.isPlaying = playing })
}

// Volume returns the current volume
func (s *State) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Muted returns the mute flag
func (s *State) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// PlayerState returns the reported player state
func (s *State) PlayerState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerState
}

// IsPlaying reports whether a stream is playing
func (s *State) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPlaying
}

// Format returns the current stream format
func (s *State) Format() (audio.Format, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == nil {
		return audio.Format{}, false
	}
	return *s.format, true
}

// SetFormat replaces the current stream format
func (s *State) SetFormat(f audio.Format) {
	s.mutate(func() { s.format = &f })
}

// ClearFormat drops the current stream format
func (s *State) ClearFormat() {
	s.mutate(func() { s.format = nil })
}

// Generation returns the current stream generation
func (s *State) Generation() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// ResetAnchor clears the stream anchor and starts a new generation
func (s *State) ResetAnchor() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchor = nil
	s.generation++
	return s.generation
}

// Anchor returns the stream anchor, if one is set
func (s *State) Anchor() (StreamAnchor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anchor == nil {
		return StreamAnchor{}, false
	}
	return *s.anchor, true
}

// EnsureAnchor returns the anchor for generation gen, establishing it from
// serverTime and outputTime when none exists. It returns false when gen is
// no longer current.
func (s *State) EnsureAnchor(gen uint32, serverTime int64, outputTime float64) (StreamAnchor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return StreamAnchor{}, false
	}
	if s.anchor == nil {
		s.anchor = &StreamAnchor{
			StartServerTime: serverTime,
			StartOutputTime: outputTime,
			Generation:      gen,
		}
	}
	return *s.anchor, true
}

// ArmTimers (re)starts the time-sync and state-report timers. Timers that
// are already running are replaced.
func (s *State) ArmTimers(timeSyncEvery time.Duration, timeSync func(), stateEvery time.Duration, stateReport func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimersLocked()
	s.timeSync = startPeriodic(timeSyncEvery, timeSync)
	s.stateReport = startPeriodic(stateEvery, stateReport)
}

// TimersArmed reports whether the periodic timers are running
func (s *State) TimersArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeSync != nil || s.stateReport != nil
}

// CancelTimers stops both periodic timers. Safe to call repeatedly.
func (s *State) CancelTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimersLocked()
}

func (s *State) cancelTimersLocked() {
	if s.timeSync != nil {
		s.timeSync.cancel()
		s.timeSync = nil
	}
	if s.stateReport != nil {
		s.stateReport.cancel()
		s.stateReport = nil
	}
}

// Reset returns to the initial state and cancels the timers
func (s *State) Reset() {
	s.mutate(func() {
		s.cancelTimersLocked()
		s.volume = s.initialVolume
		s.muted = false
		s.playerState = protocol.PlayerStateSynchronized
		s.isPlaying = false
		s.format = nil
		s.anchor = nil
		s.generation++
	})
}
