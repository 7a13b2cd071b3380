package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
// Precedence is struct defaults < YAML file < command-line flags.
type Config struct {
	// LogLevel is debug, info, warn or error; empty keeps the CLI quiet
	LogLevel     string `yaml:"log_level"`
	Backend      string `yaml:"backend" default:"go-ble"`
	OutputFormat string `yaml:"output_format" default:"table"` // table, json
	EventBuffer  int    `yaml:"event_buffer" default:"64"`

	Target  Target  `yaml:"target"`
	Timing  Timing  `yaml:"timing"`
	Tracing Tracing `yaml:"tracing"`
}

// Target identifies the actuator peripheral and its command payloads
type Target struct {
	Name               string `yaml:"name" default:"ESP32_MOTOR_LED"`
	ServiceUUID        string `yaml:"service_uuid" default:"4fafc201-1fb5-459e-8fcc-c5c9c331914b"`
	CharacteristicUUID string `yaml:"characteristic_uuid" default:"beb5483e-36e1-4688-b7f5-ea07361b26a8"`
	OnPayload          string `yaml:"on_payload" default:"1"`
	OffPayload         string `yaml:"off_payload" default:"0"`
}

// Timing groups every time bound used by the controller and adapters
type Timing struct {
	ScanWindow     time.Duration `yaml:"scan_window" default:"15s"`
	ScanResetDelay time.Duration `yaml:"scan_reset_delay" default:"500ms"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	PulseHold      time.Duration `yaml:"pulse_hold" default:"100ms"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"5s"`
}

// Tracing configures OpenTelemetry export
type Tracing struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" default:"noop"` // noop, stdout, file
	Path     string `yaml:"path"`                    // output file for the file exporter
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultConfigPath returns ~/.config/blemotor/config.yaml, or "" if there is no home directory
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blemotor", "config.yaml")
}

// Load reads and parses a YAML config file. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists, falling back to defaults otherwise.
// An empty path means DefaultConfigPath.
func LoadOrDefault(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Load(path)
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("output_format must be \"table\" or \"json\", got %q", c.OutputFormat)
	}

	if strings.TrimSpace(c.Target.Name) == "" {
		return fmt.Errorf("target.name must not be empty")
	}
	if c.Target.ServiceUUID == "" || c.Target.CharacteristicUUID == "" {
		return fmt.Errorf("target.service_uuid and target.characteristic_uuid must not be empty")
	}
	if c.Target.OnPayload == "" || c.Target.OffPayload == "" {
		return fmt.Errorf("target.on_payload and target.off_payload must not be empty")
	}

	if c.Timing.ScanWindow <= 0 {
		return fmt.Errorf("timing.scan_window must be > 0")
	}
	if c.Timing.ConnectTimeout <= 0 || c.Timing.WriteTimeout <= 0 {
		return fmt.Errorf("timing.connect_timeout and timing.write_timeout must be > 0")
	}
	if c.Timing.PulseHold < 0 || c.Timing.ScanResetDelay < 0 {
		return fmt.Errorf("timing.pulse_hold and timing.scan_reset_delay must not be negative")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be > 0")
	}

	if c.Tracing.Enabled && c.Tracing.Exporter == "file" && c.Tracing.Path == "" {
		return fmt.Errorf("tracing.path is required for the file exporter")
	}
	return nil
}

// Level returns the configured logrus level, PanicLevel (silent) when unset
func (c *Config) Level() logrus.Level {
	if c.LogLevel == "" {
		return logrus.PanicLevel
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
