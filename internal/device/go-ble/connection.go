package goble

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
)

// Connection represents a live go-ble client connection
type Connection struct {
	id           string
	client       gattClient
	logger       *logrus.Logger
	writeTimeout time.Duration
	onClose      func()

	mu        sync.RWMutex
	connected bool
	services  []device.Service
	writeMu   sync.Mutex
}

func newConnection(id string, client gattClient, writeTimeout time.Duration, logger *logrus.Logger, onClose func()) *Connection {
	return &Connection{
		id:           id,
		client:       client,
		logger:       logger,
		writeTimeout: writeTimeout,
		onClose:      onClose,
		connected:    true,
	}
}

func (c *Connection) ID() string { return c.id }

// DiscoverServicesAndCharacteristics populates Services from a forced profile discovery.
// go-ble discovery is not context aware, so ctx only bounds how long we wait for it.
func (c *Connection) DiscoverServicesAndCharacteristics(ctx context.Context) error {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		return device.ErrNotConnected
	}

	c.logger.WithField("address", c.id).Debug("Discovering services and characteristics...")

	type discoverResult struct {
		profile *ble.Profile
		err     error
	}
	resultCh := make(chan discoverResult, 1)
	go func() {
		profile, err := c.client.DiscoverProfile(true)
		resultCh <- discoverResult{profile: profile, err: err}
	}()

	var profile *ble.Profile
	select {
	case result := <-resultCh:
		if result.err != nil {
			c.logger.WithFields(logrus.Fields{
				"address": c.id,
				"error":   result.err,
			}).Error("Failed to discover profile")
			return fmt.Errorf("failed to discover profile: %w", NormalizeError(result.err))
		}
		profile = result.profile
	case <-ctx.Done():
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(ctx.Err()))
	}

	services := make([]device.Service, 0)
	totalChars := 0
	if profile != nil {
		for _, bleSvc := range profile.Services {
			svc := &Service{uuid: device.NormalizeUUID(bleSvc.UUID.String())}
			for _, bleChar := range bleSvc.Characteristics {
				svc.characteristics = append(svc.characteristics, &Characteristic{
					uuid:     device.NormalizeUUID(bleChar.UUID.String()),
					bleChar:  bleChar,
					conn:     c,
					property: bleChar.Property,
				})
				c.logger.WithFields(logrus.Fields{
					"service_uuid": svc.uuid,
					"char_uuid":    bleChar.UUID.String(),
				}).Debug("Found characteristic UUID")
			}
			totalChars += len(svc.characteristics)
			services = append(services, svc)
		}
	}
	sort.Slice(services, func(i, j int) bool {
		return services[i].UUID() < services[j].UUID()
	})

	c.mu.Lock()
	c.services = services
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"address":         c.id,
		"services":        len(services),
		"characteristics": totalChars,
	}).Info("Profile discovered successfully")
	return nil
}

// Services returns all discovered services sorted by UUID
func (c *Connection) Services() []device.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]device.Service(nil), c.services...)
}

// CancelConnection disconnects the client. Cancelling twice returns device.ErrNotConnected.
func (c *Connection) CancelConnection() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		c.logger.WithField("address", c.id).Debug("CancelConnection called but already disconnected")
		return device.ErrNotConnected
	}
	c.connected = false
	c.services = nil
	c.mu.Unlock()

	if c.onClose != nil {
		c.onClose()
	}

	if err := c.client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to cancel connection: %w", NormalizeError(err))
	}
	c.logger.WithField("address", c.id).Info("BLE device disconnected")
	return nil
}

func (c *Connection) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Service is a discovered GATT service
type Service struct {
	uuid            string
	characteristics []device.Characteristic
}

func (s *Service) UUID() string { return s.uuid }

func (s *Service) Characteristics() []device.Characteristic {
	return append([]device.Characteristic(nil), s.characteristics...)
}

// Characteristic is a discovered GATT characteristic bound to its connection
type Characteristic struct {
	uuid     string
	bleChar  *ble.Characteristic
	property ble.Property
	conn     *Connection
}

func (c *Characteristic) UUID() string { return c.uuid }

// WriteWithResponse performs an acknowledged write. The wait is bounded by ctx and the
// adapter write timeout; the underlying write cannot be aborted once issued.
func (c *Characteristic) WriteWithResponse(ctx context.Context, payload []byte) error {
	if !c.conn.isConnected() {
		return device.ErrNotConnected
	}
	if c.property != 0 && c.property&ble.CharWrite == 0 {
		return fmt.Errorf("characteristic %s does not support acknowledged writes: %w", c.uuid, device.ErrUnsupported)
	}

	// go-ble clients are not safe for concurrent GATT requests
	c.conn.writeMu.Lock()
	defer c.conn.writeMu.Unlock()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- c.conn.client.WriteCharacteristic(c.bleChar, payload, false)
	}()

	timer := time.NewTimer(c.conn.writeTimeout)
	defer timer.Stop()

	select {
	case err := <-resultCh:
		if err != nil {
			return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, NormalizeError(err))
		}
		c.conn.logger.WithFields(logrus.Fields{
			"char_uuid": c.uuid,
			"bytes":     len(payload),
		}).Debug("Characteristic written")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, NormalizeError(ctx.Err()))
	case <-timer.C:
		return fmt.Errorf("timeout writing characteristic %s after %v: %w", c.uuid, c.conn.writeTimeout, device.ErrTimeout)
	}
}
