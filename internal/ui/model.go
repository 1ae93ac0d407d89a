// ABOUTME: Bubbletea model for the speaker TUI
// ABOUTME: Shows the device, negotiated params, utterance progress and fault counters
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

// Model represents the TUI state
type Model struct {
	// Session
	session string
	backend string
	device  string
	state   string

	// Negotiated stream
	params *playback.Params

	// Current utterance
	utterance string
	index     int
	written   int
	total     int

	// Stats
	stats playback.Stats

	lastErr string

	// Debug
	showDebug bool
	quit      func()

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderStreamInfo()
	s += m.renderProgress()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders device and session state
func (m Model) renderHeader() string {
	device := "(not opened)"
	if m.device != "" {
		device = fmt.Sprintf("%s via %s", m.device, m.backend)
	}

	stateIcon := "·"
	switch m.state {
	case StateSpeaking:
		stateIcon = "▶"
	case StateDone:
		stateIcon = "✓"
	case StateFailed:
		stateIcon = "✗"
	}

	return fmt.Sprintf(`┌─ ttsplay ────────────────────────────────────────────┐
│ Device: %-44s │
│ State:  %s %-42s │
├──────────────────────────────────────────────────────┤
`, truncate(device, 44), stateIcon, truncate(m.state, 42))
}

// renderStreamInfo renders the negotiated parameters
func (m Model) renderStreamInfo() string {
	if m.params == nil {
		return "│ No stream                                            │\n"
	}

	p := m.params
	s := fmt.Sprintf("│ Format: %s %dHz %-28s │\n",
		p.Format, p.Rate, channelName(p.Channels))
	s += fmt.Sprintf("│ Period: %d frames x %d (%v buffered)%-12s │\n",
		p.ChunkFrames, p.ChunkCount, p.BufferTime.Round(time.Millisecond), "")
	return s
}

// renderProgress renders the current utterance
func (m Model) renderProgress() string {
	if m.utterance == "" {
		return "│                                                      │\n" +
			"│ Waiting for utterance                                │\n"
	}

	pct := 0
	if m.total > 0 {
		pct = m.written * 100 / m.total
	}

	return fmt.Sprintf("│                                                      │\n"+
		"│ #%-3d %-47s │\n"+
		"│ [%s] %3d%%%-26s │\n",
		m.index, truncate(m.utterance, 47),
		renderBar(m.written, m.total, 20), pct, "")
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Stats:  Bytes: %d  Underruns: %d  Suspends: %d%-4s │
│                                                      │
`, m.stats.BytesWritten, m.stats.Underruns, m.stats.Suspends, "")
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ d:Debug  q:Quit                                      │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	s := fmt.Sprintf(`│ DEBUG:                                               │
│   Session:  %-40s │
│   Writes: %d  Waits: %d  Timeouts: %d%-14s │
`, truncate(m.session, 40), m.stats.Writes, m.stats.Waits, m.stats.Timeouts, "")
	if m.lastErr != "" {
		s += fmt.Sprintf("│   Error: %-43s │\n", truncate(m.lastErr, 43))
	}
	return s
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.quit != nil {
			m.quit()
		}
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Session != "" {
		m.session = msg.Session
	}
	if msg.Device != "" {
		m.device = msg.Device
		m.backend = msg.Backend
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Params != nil {
		p := *msg.Params
		m.params = &p
	}
	if msg.Utterance != "" {
		m.utterance = msg.Utterance
		m.index = msg.Index
		m.total = msg.Total
	}
	if msg.Written > 0 || msg.Utterance != "" {
		m.written = msg.Written
	}
	if msg.Stats != nil {
		m.stats = *msg.Stats
	}
	if msg.Err != nil {
		m.lastErr = msg.Err.Error()
	}
}

// Session states reported in StatusMsg.State.
const (
	StateOpening  = "opening"
	StateSpeaking = "speaking"
	StateDraining = "draining"
	StateDone     = "done"
	StateFailed   = "failed"
)

// StatusMsg updates TUI state. Zero fields leave the model unchanged.
type StatusMsg struct {
	Session   string
	Backend   string
	Device    string
	State     string
	Params    *playback.Params
	Utterance string
	Index     int
	Written   int
	Total     int
	Stats     *playback.Stats
	Err       error
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := 0
	if max > 0 {
		filled = (value * width) / max
	}
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
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
