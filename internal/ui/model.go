// ABOUTME: Bubbletea model for the vsync monitor TUI
// ABOUTME: Tracks per-display timing state and renders the live dashboard
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/protocol"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/fps"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// pinRates is the cycle the pin key walks through, 0 meaning unpinned.
var pinRates = []float64{0, 24, 30, 60}

// displayState is everything the dashboard shows for one display.
type displayState struct {
	name         string
	idealPeriod  int64
	renderRate   float64
	slope        int64
	intercept    int64
	nextVsync    int64
	lastSample   int64
	needsSamples bool
	total        uint64
	rejected     uint64
	inPhase      *bool
}

// Model represents the TUI state
type Model struct {
	// Connection
	connected   bool
	serverName  string
	serverAddr  string
	connectedAt time.Time

	// Displays, in handshake order
	displays []displayState
	selected int

	// Debug
	showDebug bool
	lastErr   error

	// requestRate asks the daemon to pin a render rate
	requestRate func(display string, hz float64) error

	// Dimensions
	width    int
	height   int
	quitting bool
}

// New creates a monitor model. requestRate may be nil when the monitor
// is read-only.
func New(addr string, requestRate func(display string, hz float64) error) Model {
	return Model{
		serverAddr:  addr,
		requestRate: requestRate,
	}
}

// Messages injected by the feed reader.
type (
	// ConnectedMsg reports a completed handshake.
	ConnectedMsg struct {
		ServerName string
		Displays   []protocol.DisplayInfo
	}
	// DisconnectedMsg reports a dropped feed connection.
	DisconnectedMsg struct{}
	// SampleMsg carries one display/sample update.
	SampleMsg protocol.SampleUpdate
	// ModelMsg carries one display/model update.
	ModelMsg protocol.ModelUpdate
	// PhaseMsg carries one display/phase update.
	PhaseMsg protocol.PhaseUpdate
	// RateMsg carries one display/rate update.
	RateMsg protocol.RateChange
	// ErrMsg surfaces a request failure in the footer.
	ErrMsg struct{ Err error }
)

type tickMsg time.Time

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickEvery()
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
		return m, tickEvery()

	case ConnectedMsg:
		m.connected = true
		m.serverName = msg.ServerName
		m.connectedAt = time.Now()
		m.displays = m.displays[:0]
		for _, d := range msg.Displays {
			m.displays = append(m.displays, displayState{
				name:         d.Name,
				idealPeriod:  d.IdealPeriod,
				renderRate:   d.RenderRate,
				slope:        d.IdealPeriod,
				needsSamples: true,
			})
		}
		if m.selected >= len(m.displays) {
			m.selected = 0
		}

	case DisconnectedMsg:
		m.connected = false

	case SampleMsg:
		if d := m.display(msg.Display); d != nil {
			d.lastSample = msg.Timestamp
			d.total = msg.Total
			d.rejected = msg.Rejected
		}

	case ModelMsg:
		if d := m.display(msg.Display); d != nil {
			d.idealPeriod = msg.IdealPeriod
			d.slope = msg.Slope
			d.intercept = msg.Intercept
			d.nextVsync = msg.NextVsync
			d.needsSamples = msg.NeedsSamples
		}

	case PhaseMsg:
		if d := m.display(msg.Display); d != nil {
			in := msg.InPhase
			d.inPhase = &in
		}

	case RateMsg:
		if d := m.display(msg.Display); d != nil {
			d.renderRate = msg.RenderRate
			if msg.IdealPeriod != 0 {
				d.idealPeriod = msg.IdealPeriod
			}
			if msg.RenderRate == 0 {
				d.inPhase = nil
			}
		}
		m.lastErr = nil

	case ErrMsg:
		m.lastErr = msg.Err
	}

	return m, nil
}

// display finds the state for a named display.
func (m *Model) display(name string) *displayState {
	for i := range m.displays {
		if m.displays[i].name == name {
			return &m.displays[i]
		}
	}
	return nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.displays)-1 {
			m.selected++
		}
	case "p":
		if m.selected < len(m.displays) {
			d := m.displays[m.selected]
			return m, m.pinCmd(d.name, nextPinRate(d.renderRate))
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// nextPinRate returns the rate after current in the pin cycle.
func nextPinRate(current float64) float64 {
	idx := -1
	for i, r := range pinRates {
		if r == current {
			idx = i
			break
		}
	}
	return pinRates[(idx+1+len(pinRates))%len(pinRates)]
}

// pinCmd asks the daemon to pin a rate, off the UI goroutine.
func (m Model) pinCmd(display string, hz float64) tea.Cmd {
	if m.requestRate == nil {
		return nil
	}
	req := m.requestRate
	return func() tea.Msg {
		if err := req(display, hz); err != nil {
			return ErrMsg{err}
		}
		return nil
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Closing monitor...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	displayHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Vsync Monitor"))
	b.WriteString("\n\n")

	if !m.connected {
		b.WriteString(headerStyle.Render("Status: "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("connecting to %s...", m.serverAddr)))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render("Server: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%s (%s)", m.serverName, m.serverAddr)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(time.Since(m.connectedAt).Round(time.Second).String()))
	b.WriteString("\n\n")

	b.WriteString(displayHeaderStyle.Render(fmt.Sprintf("Displays (%d)", len(m.displays))))
	b.WriteString("\n\n")

	for i := range m.displays {
		b.WriteString(m.renderDisplay(i, valueStyle))
	}

	if m.showDebug && m.selected < len(m.displays) {
		b.WriteString(m.renderDebug(m.selected))
	}

	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).
			Render(fmt.Sprintf("error: %v", m.lastErr)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).
		Render("up/down: select   p: pin rate   d: debug   q: quit"))

	return b.String()
}

// renderDisplay renders one display block.
func (m Model) renderDisplay(i int, valueStyle lipgloss.Style) string {
	d := m.displays[i]

	cursor := "  "
	if i == m.selected {
		cursor = "> "
	}

	state := "locked"
	if d.needsSamples {
		state = "learning"
	}

	phase := "-"
	if d.inPhase != nil {
		if *d.inPhase {
			phase = "in"
		} else {
			phase = "out"
		}
	}

	pin := "none"
	if d.renderRate > 0 {
		pin = fps.FromHz(d.renderRate).String()
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s%-10s %s nominal\n", cursor, d.name, fps.FromPeriodNsecs(d.idealPeriod)))
	b.WriteString(valueStyle.Render(fmt.Sprintf("    model:   %d ns, intercept %+d ns  [%s]", d.slope, d.intercept, state)))
	b.WriteString("\n")
	b.WriteString(valueStyle.Render(fmt.Sprintf("    next:    +%.1f ms  phase: %s", float64(d.nextVsync-d.lastSample)/1e6, phase)))
	b.WriteString("\n")
	b.WriteString(valueStyle.Render(fmt.Sprintf("    samples: %d total, %d rejected  pin: %s", d.total, d.rejected, pin)))
	b.WriteString("\n\n")

	return b.String()
}

// renderDebug renders raw numbers for the selected display.
func (m Model) renderDebug(i int) string {
	d := m.displays[i]
	return fmt.Sprintf("DEBUG %s\n  last sample: %d ns\n  next vsync:  %d ns\n  ideal:       %d ns\n",
		d.name, d.lastSample, d.nextVsync, d.idealPeriod)
}
