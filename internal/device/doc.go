// Package device defines the BLE capability surface the controller is written against:
// adapters that scan and connect, connections that discover services, and
// characteristics that accept acknowledged writes.
//
// Backends live in the go-ble and tinygo-ble subpackages. Every error they return
// passes through NormalizeError so callers can match ErrNotConnected, ErrTimeout
// and the other sentinels with errors.Is regardless of the BLE stack underneath.
package device
