package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blemotor/controller"
	"github.com/srg/blemotor/internal/device"
)

// Command-level errors
var (
	// ErrTargetNotFound indicates the scan window ended without the target advertising.
	ErrTargetNotFound = errors.New("target device not found")

	// ErrNoTerminal indicates the TUI was started without an interactive terminal.
	ErrNoTerminal = errors.New("tui requires an interactive terminal")
)

// FormatUserError turns an error into a one-line message for the terminal
func FormatUserError(err error) string {
	var (
		verr *controller.ValidationError
		nf   *device.NotFoundError
		aerr *controller.AdapterError
	)

	switch {
	case errors.As(err, &verr):
		return fmt.Sprintf("%s (got %q)", verr.Error(), verr.Name)
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; turn it on and try again"
	case errors.Is(err, ErrTargetNotFound):
		return "target device not found; make sure it is powered and advertising, then scan again"
	case errors.As(err, &nf):
		return fmt.Sprintf("connected device is not a motor controller: %s", nf.Error())
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("operation timed out: %s", err.Error())
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("not supported: %s", err.Error())
	case errors.As(err, &aerr):
		return fmt.Sprintf("BLE %s failed: %s", aerr.Op, device.NormalizeError(aerr.Err).Error())
	}
	return err.Error()
}
