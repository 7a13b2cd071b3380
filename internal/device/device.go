package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	// A characteristic always lives in a service
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnknownPeer  = errors.New("device was not seen by the adapter")
)

// NormalizeError maps well-known library error strings to the structured errors above.
// Backends call it on everything they return so callers can use errors.Is regardless
// of which BLE stack produced the failure. The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is Bluetooth turned on"),
		containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "adapter is powered off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// IgnoreNotConnected is the already-disconnected policy used for best-effort teardown:
// cancelling a connection that does not exist is a no-op, everything else is reported.
func IgnoreNotConnected(err error) error {
	if err == nil || IsConnectionState(NormalizeError(err), NotConnected) {
		return nil
	}
	return err
}

// Advertisement is a single advertising report delivered during a scan.
type Advertisement interface {
	// ID is the adapter-specific peer identifier (MAC address on Linux, UUID on macOS).
	ID() string
	LocalName() string
	RSSI() int
	Connectable() bool
	Services() []string
	ManufacturerData() []byte
}

// Adapter is the central-role BLE radio.
//
// Open must be called once before any other method; Close releases the radio.
// Scan blocks until ctx is done, StopScan is called, or the radio fails.
// Returning because of ctx or StopScan is not an error.
type Adapter interface {
	Open(ctx context.Context) error
	Close() error

	Scan(ctx context.Context, services []string, handler func(Advertisement)) error
	StopScan() error

	Connect(ctx context.Context, id string) (Connection, error)
	// CancelConnection tears down any connection state the adapter holds for id.
	CancelConnection(ctx context.Context, id string) error
}

// Connection represents an established link to one peripheral
type Connection interface {
	ID() string
	DiscoverServicesAndCharacteristics(ctx context.Context) error
	// Services returns what was found by the last discovery, empty before it.
	Services() []Service
	CancelConnection() error
}

// Service represents a GATT service interface
type Service interface {
	UUID() string
	Characteristics() []Characteristic
}

// Characteristic represents a GATT characteristic that can be written
type Characteristic interface {
	UUID() string
	// WriteWithResponse writes payload and waits for the peripheral's acknowledgment.
	WriteWithResponse(ctx context.Context, payload []byte) error
}

// FindCharacteristic resolves a characteristic by service and characteristic UUID
// in the discovered profile of conn. UUIDs are compared normalized.
func FindCharacteristic(conn Connection, serviceUUID, charUUID string) (Characteristic, error) {
	for _, svc := range conn.Services() {
		if !EqualUUID(svc.UUID(), serviceUUID) {
			continue
		}
		for _, char := range svc.Characteristics() {
			if EqualUUID(char.UUID(), charUUID) {
				return char, nil
			}
		}
		return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return nil, &NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
}
