package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	subtitleStyle = lipgloss.NewStyle().Foreground(colorMuted)

	textSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	textError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	textWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	textInfo    = lipgloss.NewStyle().Foreground(colorInfo)
	textMuted   = lipgloss.NewStyle().Foreground(colorMuted)

	selectedRow = lipgloss.NewStyle().Bold(true).Foreground(colorInfo)
	targetRow   = lipgloss.NewStyle().Foreground(colorSuccess)

	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1)

	alertBox = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorError).
			Padding(1, 2)

	keyStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
)

const (
	symbolTarget  = "◎"
	symbolPeer    = "·"
	symbolCursor  = "›"
	symbolWarning = "⚠"
	symbolOK      = "✓"
)
