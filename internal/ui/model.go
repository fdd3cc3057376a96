// ABOUTME: Bubbletea model for player TUI
// ABOUTME: Polls the player for status and turns keys into player commands
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/Resonate-Protocol/resonate-player/pkg/resonate"
	tea "github.com/charmbracelet/bubbletea"
)

// PollInterval is how often the model refreshes its status
const PollInterval = 500 * time.Millisecond

// Player is the part of resonate.Player the TUI reads and controls
type Player interface {
	Status() (resonate.ConnState, bool)
	Snapshot() resonate.Snapshot
	Stats() resonate.PlayerStats
	CurrentFormat() (audio.Format, bool)
	SetVolume(volume int)
	SetMuted(muted bool)
}

// StatusMsg carries one poll of the player
type StatusMsg struct {
	Conn      resonate.ConnState
	Streaming bool
	Snapshot  resonate.Snapshot
	Stats     resonate.PlayerStats
	Format    audio.Format
	HasFormat bool
}

type tickMsg time.Time

// Poll reads the player's current status
func Poll(p Player) StatusMsg {
	conn, streaming := p.Status()
	format, ok := p.CurrentFormat()
	return StatusMsg{
		Conn:      conn,
		Streaming: streaming,
		Snapshot:  p.Snapshot(),
		Stats:     p.Stats(),
		Format:    format,
		HasFormat: ok,
	}
}

// Model represents the TUI state
type Model struct {
	player     Player
	serverAddr string

	status StatusMsg

	// Set locally on key press so repeated presses accumulate before the
	// next poll lands
	volume int
	muted  bool

	showDebug bool

	width  int
	height int
}

// NewModel creates a TUI model for player
func NewModel(player Player, serverAddr string) Model {
	return Model{
		player:     player,
		serverAddr: serverAddr,
		volume:     100,
	}
}

// Init starts polling
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, tea.Batch(m.poll(), tick())
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

func (m Model) poll() tea.Cmd {
	if m.player == nil {
		return nil
	}
	p := m.player
	return func() tea.Msg { return Poll(p) }
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderStreamInfo())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	switch m.status.Conn {
	case resonate.StateConnecting:
		connStatus = "Connecting to " + m.serverAddr
	case resonate.StateAwaitingHello:
		connStatus = "Handshaking with " + m.serverAddr
	case resonate.StateActive:
		connStatus = "Connected to " + m.serverAddr
	}

	syncIcon := "✗"
	syncText := "Not synchronized"
	if m.status.Stats.Synchronized {
		syncIcon = "✓"
		syncText = fmt.Sprintf("Synced (offset: %+.1fms, error: %.1fms)",
			m.status.Stats.Offset/1000.0, m.status.Stats.SyncError/1000.0)
	}

	return fmt.Sprintf(`┌─ Resonate Player ────────────────────────────────────┐
│ Status: %-44s │
│ Sync:   %s %-42s │
├──────────────────────────────────────────────────────┤
`, truncate(connStatus, 44), syncIcon, truncate(syncText, 42))
}

func (m Model) renderStreamInfo() string {
	if !m.status.Streaming || !m.status.HasFormat {
		return "│ No stream                                            │\n"
	}

	f := m.status.Format
	format := fmt.Sprintf("%s %dHz %s %d-bit", f.Codec, f.SampleRate, channelName(f.Channels), f.BitDepth)
	return fmt.Sprintf("│ Format: %-44s │\n│ State:  %-44s │\n", truncate(format, 44), m.status.Snapshot.PlayerState)
}

func (m Model) renderControls() string {
	muteText := ""
	if m.muted {
		muteText = " (muted)"
	}

	volume := fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteText)
	return fmt.Sprintf("│                                                      │\n"+
		"│ Volume: %-44s │\n"+
		"│ Buffer: %-44s │\n",
		volume,
		fmt.Sprintf("%d queued, %d scheduled", m.status.Stats.Queued, m.status.Stats.Pending))
}

func (m Model) renderStats() string {
	s := m.status.Stats
	line := fmt.Sprintf("RX: %d  Played: %d  Late: %d  Dropped: %d", s.Received, s.Scheduled, s.Late, s.Dropped)
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Stats:  %-44s │
│                                                      │
`, truncate(line, 44))
}

func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  d:Debug  q:Quit                  │
└──────────────────────────────────────────────────────┘
`
}

func (m Model) renderDebug() string {
	s := m.status.Stats
	return fmt.Sprintf("│ DEBUG:                                               │\n"+
		"│   Sync samples: %-36d │\n"+
		"│   Clock offset: %-36s │\n"+
		"│   Drift:        %-36s │\n",
		s.SyncSamples,
		fmt.Sprintf("%+.0fμs", s.Offset),
		fmt.Sprintf("%+.6f", s.Drift))
}

// handleKey handles keyboard input. Player calls run as commands so the
// update loop never blocks on the player.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		return m, m.setVolume(m.volume)
	case "down":
		m.volume = max(m.volume-5, 0)
		return m, m.setVolume(m.volume)
	case "m":
		m.muted = !m.muted
		return m, m.setMuted(m.muted)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) setVolume(volume int) tea.Cmd {
	if m.player == nil {
		return nil
	}
	p := m.player
	return func() tea.Msg {
		p.SetVolume(volume)
		return nil
	}
}

func (m Model) setMuted(muted bool) tea.Cmd {
	if m.player == nil {
		return nil
	}
	p := m.player
	return func() tea.Msg {
		p.SetMuted(muted)
		return nil
	}
}

// applyStatus updates model from a poll
func (m *Model) applyStatus(msg StatusMsg) {
	m.status = msg
	m.volume = msg.Snapshot.Volume
	m.muted = msg.Snapshot.Muted
}

func renderBar(value, maxValue, width int) string {
	filled := (value * width) / maxValue
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len([]rune(s)) <= length {
		return s
	}
	return string([]rune(s)[:length-3]) + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	}
	return fmt.Sprintf("%dch", channels)
}
