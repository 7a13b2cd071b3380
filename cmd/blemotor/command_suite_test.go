package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/devicefactory"
	"github.com/srg/blemotor/internal/testutils"
)

// fastConfig keeps command tests well under a second per scan
const fastConfig = `
backend: go-ble
timing:
  scan_window: 400ms
  scan_reset_delay: 0s
  connect_timeout: 1s
  pulse_hold: 20ms
`

// CommandTestSuite routes every backend to the suite's mock adapter.
// All cmd/blemotor test suites should embed this instead of MockAdapterSuite.
type CommandTestSuite struct {
	testutils.MockAdapterSuite

	ConfigPath string
	factory    map[string]devicefactory.Constructor
}

func (s *CommandTestSuite) SetupTest() {
	s.MockAdapterSuite.SetupTest()

	s.ConfigPath = filepath.Join(s.T().TempDir(), "config.yaml")
	s.Require().NoError(os.WriteFile(s.ConfigPath, []byte(fastConfig), 0o600))

	s.factory = devicefactory.AdapterFactory
	mocked := func(devicefactory.Options, *logrus.Logger) device.Adapter { return s.Adapter }
	devicefactory.AdapterFactory = map[string]devicefactory.Constructor{
		devicefactory.BackendGoBLE:  mocked,
		devicefactory.BackendTinyGo: mocked,
	}
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.AdapterFactory = s.factory
	resetFlags(rootCmd)
	s.MockAdapterSuite.TearDownTest()
}

// ExecuteCommand runs rootCmd with args and the suite config.
// Returns stdout and stderr separately.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append(args, "--config", s.ConfigPath))
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag of cmd and its children to its default, since
// cobra keeps parsed values between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
