// Package tinyble implements device.Adapter on tinygo.org/x/bluetooth
// (BlueZ over D-Bus on Linux, CoreBluetooth on macOS, WinRT on Windows).
package tinyble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/groutine"
	"tinygo.org/x/bluetooth"
)

const (
	defaultWriteTimeout = 5 * time.Second

	// stopRetryInterval paces repeated radio StopScan calls until the radio's Scan returns
	stopRetryInterval = 20 * time.Millisecond
)

// radio is the part of *bluetooth.Adapter the adapter drives
type radio interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
	Connect(address bluetooth.Address, params bluetooth.ConnectionParams) (bluetooth.Device, error)
}

// Adapter wraps a tinygo bluetooth adapter
type Adapter struct {
	logger       *logrus.Logger
	radio        radio
	writeTimeout time.Duration

	// release disconnects a device whose Connect completed after the caller gave up
	release func(*bluetooth.Device) error

	enableOnce sync.Once
	enableErr  error

	scanMu     sync.Mutex
	scanning   bool
	scanCancel context.CancelFunc

	// tinygo connects by bluetooth.Address, so addresses seen while scanning are kept by ID
	seen  *hashmap.Map[string, bluetooth.Address]
	conns *hashmap.Map[string, *Connection]
}

// NewAdapter creates an adapter over bluetooth.DefaultAdapter
func NewAdapter(logger *logrus.Logger, writeTimeout time.Duration) *Adapter {
	return newAdapterWithRadio(logger, writeTimeout, bluetooth.DefaultAdapter)
}

func newAdapterWithRadio(logger *logrus.Logger, writeTimeout time.Duration, r radio) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Adapter{
		logger:       logger,
		radio:        r,
		writeTimeout: writeTimeout,
		release:      func(dev *bluetooth.Device) error { return dev.Disconnect() },
		seen:         hashmap.New[string, bluetooth.Address](),
		conns:        hashmap.New[string, *Connection](),
	}
}

// Open enables the radio. Enabling happens once per adapter.
func (a *Adapter) Open(_ context.Context) error {
	a.enableOnce.Do(func() {
		a.enableErr = a.radio.Enable()
	})
	if a.enableErr != nil {
		return fmt.Errorf("failed to enable bluetooth adapter: %w", device.NormalizeError(a.enableErr))
	}
	a.logger.Info("tinygo bluetooth adapter enabled")
	return nil
}

// Close stops scanning and disconnects every live connection
func (a *Adapter) Close() error {
	_ = a.StopScan()
	a.conns.Range(func(id string, conn *Connection) bool {
		if err := device.IgnoreNotConnected(conn.CancelConnection()); err != nil {
			a.logger.WithFields(logrus.Fields{
				"address": id,
				"error":   err,
			}).Warn("Failed to disconnect during close")
		}
		return true
	})
	return nil
}

// Scan blocks until ctx is done or StopScan is called.
// tinygo only supports one scan at a time per adapter.
func (a *Adapter) Scan(ctx context.Context, services []string, handler func(device.Advertisement)) error {
	filter, err := parseUUIDs(services)
	if err != nil {
		return err
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.scanMu.Lock()
	if a.scanning {
		a.scanMu.Unlock()
		return fmt.Errorf("scan already running on this adapter")
	}
	a.scanning = true
	a.scanCancel = cancel
	a.scanMu.Unlock()

	defer func() {
		a.scanMu.Lock()
		a.scanning = false
		a.scanCancel = nil
		a.scanMu.Unlock()
	}()

	if scanCtx.Err() != nil {
		return nil
	}

	done := make(chan struct{})
	watcherDone := make(chan struct{})
	groutine.Go(scanCtx, "tinygo-scan-stop", func(ctx context.Context) {
		defer close(watcherDone)
		a.stopRadioScan(ctx, done)
	})

	err = a.radio.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if scanCtx.Err() != nil {
			return
		}
		matched, ok := matchServices(result, filter)
		if !ok {
			return
		}
		id := result.Address.String()
		a.seen.Set(id, result.Address)
		handler(newAdvertisement(id, result, matched))
	})
	close(done)
	// a late radio stop must not hit the next scan
	<-watcherDone

	if err != nil && scanCtx.Err() == nil {
		return fmt.Errorf("scan failed: %w", device.NormalizeError(err))
	}
	return nil
}

// stopRadioScan waits for ctx and then stops the radio. A stop issued before the
// radio is actually scanning has no effect, so it is repeated until Scan returns.
func (a *Adapter) stopRadioScan(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	ticker := time.NewTicker(stopRetryInterval)
	defer ticker.Stop()
	for {
		if err := a.radio.StopScan(); err != nil {
			a.logger.WithError(err).Debug("Radio StopScan failed, retrying")
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

// StopScan stops the running scan, if any. It does not wait for the radio.
func (a *Adapter) StopScan() error {
	a.scanMu.Lock()
	cancel := a.scanCancel
	a.scanMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Connect connects to a peer previously reported by Scan
func (a *Adapter) Connect(ctx context.Context, id string) (device.Connection, error) {
	addr, ok := a.seen.Get(id)
	if !ok {
		return nil, fmt.Errorf("connect to %s: %w", id, device.ErrUnknownPeer)
	}
	if _, ok := a.conns.Get(id); ok {
		return nil, device.ErrAlreadyConnected
	}

	type connectResult struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan connectResult, 1)
	go func() {
		dev, err := a.radio.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{dev: dev, err: err}
	}()

	a.logger.WithField("address", id).Debug("Connecting to BLE device...")
	select {
	case <-ctx.Done():
		// the pending Connect cannot be aborted; if it still succeeds the link is dropped
		groutine.Go(context.WithoutCancel(ctx), "tinygo-abandoned-connect", func(context.Context) {
			result := <-ch
			if result.err != nil {
				return
			}
			a.logger.WithField("address", id).Debug("Dropping connection completed after connect was abandoned")
			if err := a.release(&result.dev); err != nil {
				a.logger.WithFields(logrus.Fields{
					"address": id,
					"error":   err,
				}).Warn("Failed to disconnect abandoned connection")
			}
		})
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", id, device.NormalizeError(ctx.Err()))
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("failed to connect to device with address %q: %w", id, device.NormalizeError(result.err))
		}
		dev := result.dev
		conn := &Connection{
			id:           id,
			dev:          &dev,
			logger:       a.logger,
			writeTimeout: a.writeTimeout,
			onClose:      func() { a.conns.Del(id) },
		}
		a.conns.Set(id, conn)
		a.logger.WithField("address", id).Info("BLE device connected")
		return conn, nil
	}
}

// CancelConnection disconnects id, device.ErrNotConnected when there is no connection
func (a *Adapter) CancelConnection(_ context.Context, id string) error {
	conn, ok := a.conns.Get(id)
	if !ok {
		return device.ErrNotConnected
	}
	return conn.CancelConnection()
}

func parseUUIDs(uuids []string) ([]bluetooth.UUID, error) {
	result := make([]bluetooth.UUID, 0, len(uuids))
	for _, s := range uuids {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID %q: %w", s, err)
		}
		result = append(result, u)
	}
	return result, nil
}

func matchServices(result bluetooth.ScanResult, filter []bluetooth.UUID) ([]string, bool) {
	if len(filter) == 0 {
		return nil, true
	}
	var matched []string
	for _, u := range filter {
		if result.HasServiceUUID(u) {
			matched = append(matched, u.String())
		}
	}
	return matched, len(matched) > 0
}
