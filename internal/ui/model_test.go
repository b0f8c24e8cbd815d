// ABOUTME: Tests for the monitor TUI model
// ABOUTME: Covers message handling, selection, pin cycling, and rendering
package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/protocol"
	tea "github.com/charmbracelet/bubbletea"
)

const period60 = int64(16_666_666)

func connectedModel(t *testing.T, requestRate func(string, float64) error) Model {
	t.Helper()

	m := New("localhost:8787", requestRate)
	next, _ := m.Update(ConnectedMsg{
		ServerName: "lab-rig",
		Displays: []protocol.DisplayInfo{
			{Name: "internal", IdealPeriod: period60},
			{Name: "external", IdealPeriod: 8_333_333},
		},
	})
	next, _ = next.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestNewModelStartsDisconnected(t *testing.T) {
	m := New("localhost:8787", nil)
	if m.connected {
		t.Error("fresh model reports connected")
	}
	if len(m.displays) != 0 {
		t.Errorf("fresh model has %d displays", len(m.displays))
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	view := next.(Model).View()
	if !strings.Contains(view, "connecting to localhost:8787") {
		t.Errorf("disconnected view missing dial status:\n%s", view)
	}
}

func TestConnectedMsgPopulatesDisplays(t *testing.T) {
	m := connectedModel(t, nil)

	if len(m.displays) != 2 {
		t.Fatalf("displays = %d, want 2", len(m.displays))
	}
	if !m.displays[0].needsSamples {
		t.Error("fresh display should be learning")
	}
	if m.displays[0].slope != period60 {
		t.Errorf("fresh display slope = %d, want nominal period", m.displays[0].slope)
	}

	view := m.View()
	for _, want := range []string{"lab-rig", "internal", "external", "60.00 Hz", "120.00 Hz", "Displays (2)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestFeedUpdatesRender(t *testing.T) {
	m := connectedModel(t, nil)

	next, _ := m.Update(SampleMsg{Display: "internal", Timestamp: period60, Accepted: true, Total: 7, Rejected: 1})
	next, _ = next.Update(ModelMsg{
		Display:     "internal",
		IdealPeriod: period60,
		Slope:       period60,
		Intercept:   120,
		NextVsync:   2 * period60,
	})
	next, _ = next.Update(PhaseMsg{Display: "internal", TimePoint: 2 * period60, InPhase: true})
	m = next.(Model)

	d := m.display("internal")
	if d.total != 7 || d.rejected != 1 {
		t.Errorf("counters = %d/%d", d.total, d.rejected)
	}
	if d.needsSamples {
		t.Error("model update did not clear the learning flag")
	}

	view := m.View()
	for _, want := range []string{"+16.7 ms", "phase: in", "7 total, 1 rejected", "intercept +120 ns", "[locked]"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestUpdatesForUnknownDisplayIgnored(t *testing.T) {
	m := connectedModel(t, nil)

	next, _ := m.Update(ModelMsg{Display: "ghost", Slope: 1})
	m = next.(Model)

	if m.display("ghost") != nil {
		t.Error("unknown display materialized")
	}
	if m.displays[0].slope != period60 {
		t.Error("unknown display update leaked into another display")
	}
}

func TestSelectionAndPinCycle(t *testing.T) {
	var gotDisplay string
	var gotRate float64
	m := connectedModel(t, func(display string, hz float64) error {
		gotDisplay = display
		gotRate = hz
		return nil
	})

	next, _ := m.Update(key("down"))
	m = next.(Model)
	if m.selected != 1 {
		t.Fatalf("selected = %d, want 1", m.selected)
	}

	next, cmd := m.Update(key("p"))
	m = next.(Model)
	if cmd == nil {
		t.Fatal("pin key returned no command")
	}
	if msg := cmd(); msg != nil {
		t.Fatalf("pin command returned %v", msg)
	}
	if gotDisplay != "external" || gotRate != 24 {
		t.Errorf("pin request = %q %v, want external 24", gotDisplay, gotRate)
	}

	// The daemon confirms by broadcast; the next pin press advances.
	next, _ = m.Update(RateMsg{Display: "external", IdealPeriod: 8_333_333, RenderRate: 24})
	m = next.(Model)
	next, cmd = m.Update(key("p"))
	if cmd == nil {
		t.Fatal("second pin returned no command")
	}
	cmd()
	if gotRate != 30 {
		t.Errorf("second pin rate = %v, want 30", gotRate)
	}

	next, _ = m.Update(key("up"))
	m = next.(Model)
	if m.selected != 0 {
		t.Errorf("selected after up = %d, want 0", m.selected)
	}
}

func TestPinErrorSurfacesInFooter(t *testing.T) {
	m := connectedModel(t, nil)

	next, cmd := m.Update(key("p"))
	m = next.(Model)
	if cmd != nil {
		t.Fatal("nil requestRate still produced a command")
	}

	next, _ = m.Update(ErrMsg{Err: errors.New("rate change failed: connection reset")})
	m = next.(Model)
	if m.lastErr == nil {
		t.Fatal("error message not stored")
	}
	if !strings.Contains(m.View(), "error:") {
		t.Error("view does not surface the error")
	}

	// A confirmed rate change clears the error.
	next, _ = m.Update(RateMsg{Display: "internal", RenderRate: 30})
	m = next.(Model)
	if m.lastErr != nil {
		t.Error("rate confirmation did not clear the error")
	}
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		t.Run(k, func(t *testing.T) {
			m := connectedModel(t, nil)
			var msg tea.KeyMsg
			if k == "ctrl+c" {
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			} else {
				msg = key(k)
			}
			next, cmd := m.Update(msg)
			if cmd == nil {
				t.Fatal("quit key returned no command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("quit key did not produce tea.Quit")
			}
			if !strings.Contains(next.(Model).View(), "Closing monitor") {
				t.Error("quitting view not rendered")
			}
		})
	}
}

func TestNextPinRateCycles(t *testing.T) {
	cases := []struct {
		current float64
		want    float64
	}{
		{0, 24},
		{24, 30},
		{30, 60},
		{60, 0},
		{59.94, 0}, // off-cycle pins restart at unpinned
	}
	for _, tc := range cases {
		if got := nextPinRate(tc.current); got != tc.want {
			t.Errorf("nextPinRate(%v) = %v, want %v", tc.current, got, tc.want)
		}
	}
}
