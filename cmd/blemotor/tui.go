package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blemotor/internal/logring"
	"github.com/srg/blemotor/internal/tui"
	"golang.org/x/term"
)

const tuiLogLines = 256

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal UI",
	Long: `Single-screen terminal UI for the actuator.

  s      search for devices
  ↑/↓    select a device
  enter  connect to the selected device
  space  send a pulse
  d      disconnect
  q      quit

Log output is shown inside the UI instead of on stderr.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

// isTerminal reports whether stdin and stdout are both attached to a terminal.
// This is a variable so that it can be overridden in tests.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func runTUI(cmd *cobra.Command, _ []string) error {
	if !isTerminal() {
		return ErrNoTerminal
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	// the log pane is the only place logs show up, so keep it useful by default
	if cfg.LogLevel == "" {
		logger.SetLevel(logrus.InfoLevel)
	}
	hook, _ := logring.Capture(logger, tuiLogLines)
	cmd.SilenceUsage = true

	// pretty-printed spans would tear the alt screen; use the file exporter instead
	a, err := newApp(cmd.Context(), cfg, logger, io.Discard)
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(cmd.Context(), a.ctrl, hook, cfg.Target.Name)
}
