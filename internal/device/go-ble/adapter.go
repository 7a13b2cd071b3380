package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
)

// DefaultWriteTimeout bounds a single acknowledged write when the caller's context has no deadline
const DefaultWriteTimeout = 5 * time.Second

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = defaultDevice

// hostDevice is the part of ble.Device the central role needs
type hostDevice interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
	Stop() error
}

// gattClient is the part of ble.Client used by a connection
type gattClient interface {
	Addr() ble.Addr
	DiscoverProfile(force bool) (*ble.Profile, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

type dialFunc func(ctx context.Context, addr string) (gattClient, error)

// Adapter implements device.Adapter on top of go-ble/ble
type Adapter struct {
	logger       *logrus.Logger
	writeTimeout time.Duration

	mu   sync.Mutex
	host hostDevice
	dial dialFunc

	scanMu     sync.Mutex
	scanCancel context.CancelFunc

	// live connections by peer address
	clients *hashmap.Map[string, *Connection]
}

// NewAdapter creates a go-ble adapter. The radio is acquired by Open.
func NewAdapter(logger *logrus.Logger, writeTimeout time.Duration) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Adapter{
		logger:       logger,
		writeTimeout: writeTimeout,
		clients:      hashmap.New[string, *Connection](),
	}
}

// newAdapterWithHost wires an already created host device; used by Open and tests
func newAdapterWithHost(logger *logrus.Logger, writeTimeout time.Duration, host hostDevice, dial dialFunc) *Adapter {
	a := NewAdapter(logger, writeTimeout)
	a.attach(host, dial)
	return a
}

func (a *Adapter) attach(host hostDevice, dial dialFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.host = host
	if dial == nil {
		dial = func(ctx context.Context, addr string) (gattClient, error) {
			client, err := host.Dial(ctx, ble.NewAddr(addr))
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
	a.dial = dial
}

func (a *Adapter) hostDevice() (hostDevice, dialFunc, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.host == nil {
		return nil, nil, device.ErrNotInitialized
	}
	return a.host, a.dial, nil
}

// Open creates the platform BLE device through DeviceFactory
func (a *Adapter) Open(_ context.Context) error {
	a.mu.Lock()
	opened := a.host != nil
	a.mu.Unlock()
	if opened {
		return nil
	}

	a.logger.Debug("Opening go-ble device...")
	dev, err := DeviceFactory()
	if err != nil {
		a.logger.WithError(err).Error("Failed to create BLE device")
		return fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	a.attach(dev, nil)

	a.logger.Info("go-ble device opened")
	return nil
}

// Close stops scanning, cancels every live connection and stops the device
func (a *Adapter) Close() error {
	_ = a.StopScan()

	a.clients.Range(func(addr string, conn *Connection) bool {
		if err := conn.CancelConnection(); device.IgnoreNotConnected(err) != nil {
			a.logger.WithFields(logrus.Fields{
				"address": addr,
				"error":   err,
			}).Warn("Failed to cancel connection during close")
		}
		return true
	})

	a.mu.Lock()
	host := a.host
	a.host = nil
	a.dial = nil
	a.mu.Unlock()

	if host == nil {
		return nil
	}
	if err := host.Stop(); err != nil {
		return fmt.Errorf("failed to stop BLE device: %w", NormalizeError(err))
	}
	a.logger.Info("go-ble device closed")
	return nil
}

// Scan delivers advertisements to handler until ctx is done or StopScan is called.
// A non-empty services list keeps only advertisements announcing one of them.
func (a *Adapter) Scan(ctx context.Context, services []string, handler func(device.Advertisement)) error {
	host, _, err := a.hostDevice()
	if err != nil {
		return err
	}

	scanCtx, cancel := context.WithCancel(ctx)
	a.scanMu.Lock()
	if a.scanCancel != nil {
		a.scanCancel()
	}
	a.scanCancel = cancel
	a.scanMu.Unlock()
	defer cancel()

	bleHandler := func(adv ble.Advertisement) {
		wrapped := newAdvertisement(adv)
		if !advertisesAny(wrapped, services) {
			return
		}
		handler(wrapped)
	}

	a.logger.WithField("services", services).Debug("Starting go-ble scan")
	// duplicates stay on: a peer's name may only arrive in a later scan response.
	// scanner.Discovery dedupes by ID when its caller asks for it.
	err = host.Scan(scanCtx, true, bleHandler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NormalizeError(err)
	}
	return nil
}

// StopScan cancels the running scan, if any
func (a *Adapter) StopScan() error {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	if a.scanCancel != nil {
		a.scanCancel()
		a.scanCancel = nil
	}
	return nil
}

// Connect dials the peer with the given address. Discovery is a separate step.
func (a *Adapter) Connect(ctx context.Context, id string) (device.Connection, error) {
	_, dial, err := a.hostDevice()
	if err != nil {
		return nil, err
	}
	if _, ok := a.clients.Get(id); ok {
		a.logger.WithField("address", id).Warn("Connection attempt while already connected")
		return nil, device.ErrAlreadyConnected
	}

	a.logger.WithField("address", id).Debug("Dialing BLE device...")
	client, err := dial(ctx, id)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"address": id,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", id, NormalizeError(err))
	}

	conn := newConnection(id, client, a.writeTimeout, a.logger, func() { a.clients.Del(id) })
	a.clients.Set(id, conn)

	a.logger.WithField("address", id).Info("BLE device connected")
	return conn, nil
}

// CancelConnection tears down the live connection to id.
// It returns device.ErrNotConnected when there is none.
func (a *Adapter) CancelConnection(_ context.Context, id string) error {
	conn, ok := a.clients.Get(id)
	if !ok {
		return device.ErrNotConnected
	}
	return conn.CancelConnection()
}

func advertisesAny(adv device.Advertisement, services []string) bool {
	if len(services) == 0 {
		return true
	}
	for _, want := range services {
		for _, got := range adv.Services() {
			if device.EqualUUID(want, got) {
				return true
			}
		}
	}
	return false
}
