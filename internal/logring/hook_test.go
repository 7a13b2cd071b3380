package logring

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHook_CapturesEntries(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	hook, prev := Capture(logger, 8)

	assert.NotNil(t, prev)
	assert.Equal(t, io.Discard, logger.Out, "regular output MUST be silenced")

	logger.WithFields(logrus.Fields{
		"address": "AA:BB",
		"error":   errors.New("boom"),
	}).Warn("Failed to cancel connection")
	logger.Debug("debug line")

	select {
	case <-hook.Notify():
	default:
		t.Fatal("notify MUST be signalled")
	}

	lines := hook.Drain()
	require.Len(t, lines, 2)
	assert.Equal(t, logrus.WarnLevel, lines[0].Level)
	assert.Equal(t, "boom", lines[0].Fields["error"], "errors MUST be flattened to strings")
	assert.Contains(t, lines[0].String(), "WARNING Failed to cancel connection address=AA:BB error=boom")
	assert.Equal(t, "debug line", lines[1].Message)

	assert.Empty(t, hook.Drain(), "Drain MUST empty the ring")
}

func TestHook_LevelsFollowLoggerLevel(t *testing.T) {
	hook := New(4, logrus.InfoLevel)

	assert.Contains(t, hook.Levels(), logrus.ErrorLevel)
	assert.Contains(t, hook.Levels(), logrus.InfoLevel)
	assert.NotContains(t, hook.Levels(), logrus.DebugLevel)
}

func TestHook_OverwritesOldest(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hook := New(4, logrus.InfoLevel)
	logger.AddHook(hook)

	for i := 0; i < 10; i++ {
		logger.WithField("i", i).Info("tick")
	}

	lines := hook.Drain()
	require.NotEmpty(t, lines)
	assert.LessOrEqual(t, len(lines), 4)
	assert.Equal(t, 9, lines[len(lines)-1].Fields["i"], "newest entry MUST survive")
	assert.Positive(t, hook.Overwritten())
}
