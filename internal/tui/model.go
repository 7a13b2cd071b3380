// Package tui implements the single-screen Bubble Tea front end for the controller.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/srg/blemotor/controller"
	"github.com/srg/blemotor/internal/logring"
)

// Controller is the part of *controller.Controller the UI drives
type Controller interface {
	StartScan(ctx context.Context) error
	StopScan()
	Connect(ctx context.Context, dev controller.Device) error
	SendPulse(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Snapshot() controller.Snapshot
	Subscribe() <-chan controller.Event
	Unsubscribe(ch <-chan controller.Event)
}

// Ensure Model satisfies tea.Model.
var _ tea.Model = Model{}

const maxLogLines = 200

// Model is the root Bubble Tea model
type Model struct {
	ctx    context.Context
	ctrl   Controller
	events <-chan controller.Event
	hook   *logring.Hook
	target string

	snap    controller.Snapshot
	cursor  int
	alert   string
	status  string
	failed  bool
	logs    []logring.Line
	spinner spinner.Model

	width  int
	height int
}

// New creates the model and subscribes to controller events.
// hook may be nil, in which case the log pane stays empty.
func New(ctx context.Context, ctrl Controller, hook *logring.Hook, target string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorInfo)

	return Model{
		ctx:     ctx,
		ctrl:    ctrl,
		events:  ctrl.Subscribe(),
		hook:    hook,
		target:  target,
		snap:    ctrl.Snapshot(),
		spinner: s,
	}
}

// Init starts the spinner and the event and log pumps.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForEvent(m.events),
		waitForLogs(m.hook),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.snap = msg.Event.Snapshot
		m.clampCursor()
		if msg.Event.Type == controller.EventScanStopped && msg.Event.Err != nil {
			m.setStatus(msg.Event.Err)
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, tea.Quit

	case opDoneMsg:
		return m.handleOpDone(msg)

	case logMsg:
		m.logs = append(m.logs, msg.Lines...)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		return m, waitForLogs(m.hook)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, m.quit()
	}

	// the alert blocks every other key until acknowledged
	if m.alert != "" {
		switch msg.String() {
		case "enter", "esc":
			m.alert = ""
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m, m.quit()

	case "s":
		if m.snap.Connected() || m.snap.Scanning {
			return m, nil
		}
		m.status = ""
		return m, runOp(m.ctx, "scan", m.ctrl.StartScan)

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.snap.Devices)-1 {
			m.cursor++
		}
		return m, nil

	case "enter":
		if m.snap.Connected() || m.snap.Connecting || len(m.snap.Devices) == 0 {
			return m, nil
		}
		dev := m.snap.Devices[m.cursor]
		m.status = ""
		return m, runOp(m.ctx, "connect", func(ctx context.Context) error {
			return m.ctrl.Connect(ctx, dev)
		})

	case " ":
		if !m.snap.Connected() || m.snap.Pulsing {
			return m, nil
		}
		return m, runOp(m.ctx, "pulse", m.ctrl.SendPulse)

	case "d":
		if !m.snap.Connected() {
			return m, nil
		}
		return m, runOp(m.ctx, "disconnect", m.ctrl.Disconnect)
	}

	return m, nil
}

func (m Model) handleOpDone(msg opDoneMsg) (tea.Model, tea.Cmd) {
	var verr *controller.ValidationError
	switch {
	case msg.Err == nil:
		m.failed = false
		switch msg.Op {
		case "pulse":
			m.status = "Pulse sent"
		case "connect":
			m.status = "Connected"
		case "disconnect":
			m.status = "Disconnected"
		}
	case errors.As(msg.Err, &verr):
		m.alert = verr.Error()
	case errors.Is(msg.Err, controller.ErrPulseInFlight), errors.Is(msg.Err, controller.ErrScanInProgress):
		// rejected as a no-op
	default:
		m.setStatus(fmt.Errorf("%s: %w", msg.Op, msg.Err))
	}
	m.snap = m.ctrl.Snapshot()
	m.clampCursor()
	return m, nil
}

func (m *Model) setStatus(err error) {
	m.status = err.Error()
	m.failed = true
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.snap.Devices) {
		m.cursor = len(m.snap.Devices) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) quit() tea.Cmd {
	m.ctrl.Unsubscribe(m.events)
	return tea.Quit
}

// View renders the screen.
func (m Model) View() string {
	header := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("BLE Motor Controller"),
		subtitleStyle.Render("Control your "+m.target+" device"),
	)

	if m.alert != "" {
		alert := alertBox.Render(lipgloss.JoinVertical(lipgloss.Left,
			textError.Render(symbolWarning+" "+m.alert),
			"",
			textMuted.Render("enter/esc: OK"),
		))
		return lipgloss.JoinVertical(lipgloss.Left, header, "", alert)
	}

	sections := []string{header, "", m.stateLine()}
	if m.snap.Connected() {
		sections = append(sections, panel.Render(m.sessionView()))
	} else {
		sections = append(sections, panel.Render(m.devicesView()))
	}
	if m.status != "" {
		style := textSuccess
		if m.failed {
			style = textError
		}
		sections = append(sections, style.Render(m.status))
	}
	if logs := m.logsView(); logs != "" {
		sections = append(sections, panel.Render(logs))
	}
	sections = append(sections, m.hints())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) stateLine() string {
	switch {
	case m.snap.Pulsing:
		return m.spinner.View() + textWarning.Render(" Pulsing...")
	case m.snap.Connecting:
		return m.spinner.View() + textInfo.Render(" Connecting...")
	case m.snap.Connected():
		return textSuccess.Render(symbolOK + " Connected to " + m.snap.Session.Device.Name)
	case m.snap.Scanning:
		left := time.Until(m.snap.ScanDeadline).Round(time.Second)
		if left < 0 {
			left = 0
		}
		return m.spinner.View() + textInfo.Render(fmt.Sprintf(" Scanning... %s left", left))
	default:
		return textMuted.Render("Idle")
	}
}

func (m Model) devicesView() string {
	if len(m.snap.Devices) == 0 {
		if m.snap.Scanning {
			return textMuted.Render("Searching for devices...")
		}
		return textMuted.Render("No devices. Press s to search.")
	}

	var b strings.Builder
	for i, dev := range m.snap.Devices {
		cursor := " "
		if i == m.cursor {
			cursor = symbolCursor
		}
		symbol := symbolPeer
		if dev.Name == m.target {
			symbol = symbolTarget
		}
		row := fmt.Sprintf("%s %s %-24s %-20s %4d dBm", cursor, symbol, dev.Name, dev.ID, dev.RSSI)
		switch {
		case i == m.cursor:
			row = selectedRow.Render(row)
		case dev.Name == m.target:
			row = targetRow.Render(row)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(row)
	}
	return b.String()
}

func (m Model) sessionView() string {
	s := m.snap.Session
	return strings.Join([]string{
		fmt.Sprintf("Device:  %s (%s)", s.Device.Name, s.Device.ID),
		fmt.Sprintf("Session: %s", s.ID),
		fmt.Sprintf("Since:   %s", s.ConnectedAt.Format(time.TimeOnly)),
	}, "\n")
}

func (m Model) logsView() string {
	if len(m.logs) == 0 {
		return ""
	}
	n := 6
	if m.height > 0 {
		// leave room for header, device panel and hints
		n = max(3, m.height-len(m.snap.Devices)-14)
	}
	lines := m.logs
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	rendered := make([]string, 0, len(lines))
	for _, l := range lines {
		rendered = append(rendered, textMuted.Render(l.String()))
	}
	return strings.Join(rendered, "\n")
}

func (m Model) hints() string {
	var keys [][2]string
	switch {
	case m.snap.Connected():
		keys = [][2]string{{"space", "pulse"}, {"d", "disconnect"}, {"q", "quit"}}
	default:
		keys = [][2]string{{"s", "search"}, {"↑/↓", "select"}, {"enter", "connect"}, {"q", "quit"}}
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, keyStyle.Render(k[0])+" "+k[1])
	}
	return textMuted.Render(strings.Join(parts, "  "))
}

// Run starts the program and blocks until the user quits or ctx is cancelled
func Run(ctx context.Context, ctrl Controller, hook *logring.Hook, target string) error {
	p := tea.NewProgram(New(ctx, ctrl, hook, target), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
