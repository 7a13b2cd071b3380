package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/srg/blemotor/controller"
	"github.com/srg/blemotor/internal/logring"
)

// eventMsg carries a controller state event into the program
type eventMsg struct {
	Event controller.Event
}

// eventsClosedMsg is sent once the controller closes the subscription
type eventsClosedMsg struct{}

// opDoneMsg reports the outcome of a user-triggered controller operation
type opDoneMsg struct {
	Op  string
	Err error
}

// logMsg carries log lines captured since the previous one
type logMsg struct {
	Lines []logring.Line
}

func waitForEvent(ch <-chan controller.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{Event: ev}
	}
}

func waitForLogs(hook *logring.Hook) tea.Cmd {
	if hook == nil {
		return nil
	}
	return func() tea.Msg {
		<-hook.Notify()
		return logMsg{Lines: hook.Drain()}
	}
}

func runOp(ctx context.Context, op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{Op: op, Err: fn(ctx)}
	}
}
