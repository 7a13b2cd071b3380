package controller

import (
	"time"

	"github.com/srg/blemotor/internal/device"
)

// Device is a peer reported during a scan
type Device struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	RSSI             int       `json:"rssi"`
	Connectable      bool      `json:"connectable"`
	Services         []string  `json:"services,omitempty"`
	ManufacturerData []byte    `json:"manufacturer_data,omitempty"`
	Manufacturer     string    `json:"manufacturer,omitempty"`
	SeenAt           time.Time `json:"seen_at"`
}

func newDevice(adv device.Advertisement, seenAt time.Time) Device {
	return Device{
		ID:               adv.ID(),
		Name:             adv.LocalName(),
		RSSI:             adv.RSSI(),
		Connectable:      adv.Connectable(),
		Services:         append([]string(nil), adv.Services()...),
		ManufacturerData: append([]byte(nil), adv.ManufacturerData()...),
		Manufacturer:     device.Manufacturer(adv.ManufacturerData()),
		SeenAt:           seenAt,
	}
}

// Session describes the live connection to the target
type Session struct {
	ID          string    `json:"id"` // ULID
	Device      Device    `json:"device"`
	ConnectedAt time.Time `json:"connected_at"`
}

// session is the controller-owned side of a Session
type session struct {
	Session
	conn device.Connection
	char device.Characteristic
}

// Snapshot is an immutable copy of the controller state
type Snapshot struct {
	Open         bool
	Scanning     bool
	ScanDeadline time.Time // zero when not scanning
	Connecting   bool
	Pulsing      bool
	Devices      []Device // first-seen order
	Session      *Session
}

// Connected reports whether a session exists
func (s Snapshot) Connected() bool {
	return s.Session != nil
}

// EventType identifies what changed
type EventType int

const (
	EventScanStarted EventType = iota + 1
	EventScanStopped
	EventDeviceDiscovered
	EventConnecting
	EventConnected
	EventConnectFailed
	EventPulseStarted
	EventPulseFinished
	EventPulseFailed
	EventDisconnected
	EventClosed
)

var eventNames = map[EventType]string{
	EventScanStarted:      "scan_started",
	EventScanStopped:      "scan_stopped",
	EventDeviceDiscovered: "device_discovered",
	EventConnecting:       "connecting",
	EventConnected:        "connected",
	EventConnectFailed:    "connect_failed",
	EventPulseStarted:     "pulse_started",
	EventPulseFinished:    "pulse_finished",
	EventPulseFailed:      "pulse_failed",
	EventDisconnected:     "disconnected",
	EventClosed:           "closed",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is delivered to subscribers after every state transition
type Event struct {
	Type     EventType
	Snapshot Snapshot
	Device   *Device // set for discovery and connect events
	Err      error   // set for failure events and scans ended by the adapter
	Time     time.Time
}
