// Package logring captures logrus entries into a bounded ring buffer so a
// full-screen UI can render recent log lines instead of letting them hit the terminal.
package logring

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
)

// Line is one captured log entry
type Line struct {
	Time    time.Time
	Level   logrus.Level
	Message string
	Fields  logrus.Fields
}

// String renders the line as "15:04:05 LEVEL message k=v ..." with fields sorted by key
func (l Line) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", l.Time.Format("15:04:05"), strings.ToUpper(l.Level.String()), l.Message)

	keys := make([]string, 0, len(l.Fields))
	for k := range l.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.Fields[k])
	}
	return b.String()
}

// Hook is a logrus.Hook that keeps the most recent entries, overwriting the oldest
type Hook struct {
	buffer      mpmc.RichOverlappedRingBuffer[Line]
	levels      []logrus.Level
	overwritten atomic.Uint64
	notify      chan struct{}
}

// New creates a hook keeping up to size entries at or above level
func New(size uint32, level logrus.Level) *Hook {
	if size == 0 {
		size = 256
	}
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	return &Hook{
		buffer: mpmc.NewOverlappedRingBuffer[Line](size),
		levels: levels,
		notify: make(chan struct{}, 1),
	}
}

// Levels implements logrus.Hook
func (h *Hook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook. It never blocks.
func (h *Hook) Fire(entry *logrus.Entry) error {
	fields := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fields[k] = v
	}

	overwrites, err := h.buffer.EnqueueM(Line{
		Time:    entry.Time,
		Level:   entry.Level,
		Message: entry.Message,
		Fields:  fields,
	})
	if err != nil {
		return fmt.Errorf("log ring enqueue: %w", err)
	}
	if overwrites > 0 {
		h.overwritten.Add(uint64(overwrites))
	}

	select {
	case h.notify <- struct{}{}:
	default:
	}
	return nil
}

// Drain removes and returns every buffered line, oldest first
func (h *Hook) Drain() []Line {
	var lines []Line
	for !h.buffer.IsEmpty() {
		line, err := h.buffer.Dequeue()
		if err != nil {
			break
		}
		lines = append(lines, line)
	}
	return lines
}

// Notify is signalled (coalesced) whenever a new line is captured
func (h *Hook) Notify() <-chan struct{} {
	return h.notify
}

// Overwritten reports how many lines were discarded because the ring was full
func (h *Hook) Overwritten() uint64 {
	return h.overwritten.Load()
}

// Capture installs a new hook on logger and silences its regular output.
// The previous output is returned so callers can restore it.
func Capture(logger *logrus.Logger, size uint32) (*Hook, io.Writer) {
	hook := New(size, logger.GetLevel())
	logger.AddHook(hook)
	prev := logger.Out
	logger.SetOutput(io.Discard)
	return hook, prev
}
