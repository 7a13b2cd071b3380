package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "", cfg.LogLevel)
	assert.Equal(t, "go-ble", cfg.Backend)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, 64, cfg.EventBuffer)

	assert.Equal(t, "ESP32_MOTOR_LED", cfg.Target.Name)
	assert.Equal(t, "4fafc201-1fb5-459e-8fcc-c5c9c331914b", cfg.Target.ServiceUUID)
	assert.Equal(t, "beb5483e-36e1-4688-b7f5-ea07361b26a8", cfg.Target.CharacteristicUUID)
	assert.Equal(t, "1", cfg.Target.OnPayload)
	assert.Equal(t, "0", cfg.Target.OffPayload)

	assert.Equal(t, 15*time.Second, cfg.Timing.ScanWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.Timing.ScanResetDelay)
	assert.Equal(t, 30*time.Second, cfg.Timing.ConnectTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Timing.PulseHold)
	assert.Equal(t, 5*time.Second, cfg.Timing.WriteTimeout)

	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "noop", cfg.Tracing.Exporter)

	require.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: "debug",
			expected: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: "info",
			expected: logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: "warn",
			expected: logrus.WarnLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: "error",
			expected: logrus.ErrorLevel,
		},
		{
			name:     "unset level is silent",
			logLevel: "",
			expected: logrus.PanicLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("file values override defaults, the rest stay", func(t *testing.T) {
		path := writeConfig(t, `
log_level: debug
backend: tinygo
timing:
  scan_window: 5s
  pulse_hold: 250ms
target:
  name: BENCH_RIG
tracing:
  enabled: true
  exporter: stdout
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "tinygo", cfg.Backend)
		assert.Equal(t, 5*time.Second, cfg.Timing.ScanWindow)
		assert.Equal(t, 250*time.Millisecond, cfg.Timing.PulseHold)
		assert.Equal(t, 30*time.Second, cfg.Timing.ConnectTimeout, "unset keys MUST keep defaults")
		assert.Equal(t, "BENCH_RIG", cfg.Target.Name)
		assert.Equal(t, "1", cfg.Target.OnPayload)
		assert.True(t, cfg.Tracing.Enabled)
		assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorContains(t, err, "reading config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "timing: [1, 2"))
		require.ErrorContains(t, err, "parsing config file")
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, "output_format: csv\n"))
		require.ErrorContains(t, err, "output_format")
	})
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("explicit missing path is an error", func(t *testing.T) {
		_, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("explicit existing path is loaded", func(t *testing.T) {
		cfg, err := LoadOrDefault(writeConfig(t, "backend: tinygo\n"))
		require.NoError(t, err)
		assert.Equal(t, "tinygo", cfg.Backend)
	})

	t.Run("missing default path falls back to defaults", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		cfg, err := LoadOrDefault("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"empty target name", func(c *Config) { c.Target.Name = " " }, "target.name"},
		{"empty payload", func(c *Config) { c.Target.OffPayload = "" }, "off_payload"},
		{"zero scan window", func(c *Config) { c.Timing.ScanWindow = 0 }, "scan_window"},
		{"negative hold", func(c *Config) { c.Timing.PulseHold = -time.Millisecond }, "pulse_hold"},
		{"zero event buffer", func(c *Config) { c.EventBuffer = 0 }, "event_buffer"},
		{"file exporter without path", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "file"
		}, "tracing.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}

	t.Run("zero reset delay and hold are allowed", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Timing.ScanResetDelay = 0
		cfg.Timing.PulseHold = 0
		assert.NoError(t, cfg.Validate())
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
