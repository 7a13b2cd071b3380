package controller

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by controller operations
var (
	ErrClosed            = errors.New("controller is not open")
	ErrScanInProgress    = errors.New("scan already in progress")
	ErrConnectInProgress = errors.New("connect already in progress")
	ErrPulseInFlight     = errors.New("pulse already in flight")
)

// ValidationError is returned when Connect is asked for a device other than the target.
// No adapter I/O happens before it is returned.
type ValidationError struct {
	Name     string // advertised name of the rejected device
	Expected string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("please connect to %s device only", e.Expected)
}

// Adapter operations reported by AdapterError
const (
	OpOpen     = "open"
	OpScan     = "scan"
	OpConnect  = "connect"
	OpDiscover = "discover"
	OpWriteOn  = "write on"
	OpWriteOff = "write off"
	OpClose    = "close"
)

// AdapterError wraps a backend failure with the operation that caused it.
// It unwraps to the device error taxonomy.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
