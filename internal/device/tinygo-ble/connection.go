package tinyble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	"tinygo.org/x/bluetooth"
)

// Advertisement is a scan result captured at callback time
type Advertisement struct {
	id       string
	name     string
	rssi     int
	services []string
	manuf    []byte
}

func newAdvertisement(id string, result bluetooth.ScanResult, services []string) *Advertisement {
	adv := &Advertisement{
		id:       id,
		name:     result.LocalName(),
		rssi:     int(result.RSSI),
		services: services,
	}
	for _, el := range result.ManufacturerData() {
		adv.manuf = append(adv.manuf, el.Data...)
	}
	return adv
}

func (a *Advertisement) ID() string         { return a.id }
func (a *Advertisement) LocalName() string  { return a.name }
func (a *Advertisement) RSSI() int          { return a.rssi }
func (a *Advertisement) Services() []string { return a.services }

// Connectable is not reported by tinygo scan results
func (a *Advertisement) Connectable() bool        { return true }
func (a *Advertisement) ManufacturerData() []byte { return a.manuf }

// Connection is a live tinygo device connection
type Connection struct {
	id           string
	dev          *bluetooth.Device
	logger       *logrus.Logger
	writeTimeout time.Duration
	onClose      func()

	mu       sync.RWMutex
	closed   bool
	services []device.Service
}

func (c *Connection) ID() string { return c.id }

// DiscoverServicesAndCharacteristics discovers every service and characteristic
func (c *Connection) DiscoverServicesAndCharacteristics(ctx context.Context) error {
	type discoverResult struct {
		services []device.Service
		err      error
	}
	ch := make(chan discoverResult, 1)

	go func() {
		svcs, err := c.dev.DiscoverServices(nil)
		if err != nil {
			ch <- discoverResult{err: err}
			return
		}
		result := make([]device.Service, 0, len(svcs))
		for i := range svcs {
			chars, err := svcs[i].DiscoverCharacteristics(nil)
			if err != nil {
				ch <- discoverResult{err: err}
				return
			}
			svc := &Service{uuid: device.NormalizeUUID(svcs[i].UUID().String())}
			for j := range chars {
				svc.characteristics = append(svc.characteristics, &Characteristic{
					uuid: device.NormalizeUUID(chars[j].UUID().String()),
					char: chars[j],
					conn: c,
				})
			}
			result = append(result, svc)
		}
		ch <- discoverResult{services: result}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to discover services: %w", device.NormalizeError(ctx.Err()))
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("failed to discover services: %w", device.NormalizeError(res.err))
		}
		c.mu.Lock()
		c.services = res.services
		c.mu.Unlock()
		c.logger.WithFields(logrus.Fields{
			"address":  c.id,
			"services": len(res.services),
		}).Info("Services discovered")
		return nil
	}
}

func (c *Connection) Services() []device.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]device.Service(nil), c.services...)
}

// CancelConnection disconnects; a second call returns device.ErrNotConnected
func (c *Connection) CancelConnection() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return device.ErrNotConnected
	}
	c.closed = true
	c.services = nil
	c.mu.Unlock()

	if c.onClose != nil {
		c.onClose()
	}
	if err := c.dev.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", device.NormalizeError(err))
	}
	c.logger.WithField("address", c.id).Info("BLE device disconnected")
	return nil
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

// Characteristic is a discovered GATT characteristic
type Characteristic struct {
	uuid string
	char bluetooth.DeviceCharacteristic
	conn *Connection
}

func (c *Characteristic) UUID() string { return c.uuid }

// WriteWithResponse writes with an acknowledged ATT write request
func (c *Characteristic) WriteWithResponse(ctx context.Context, payload []byte) error {
	c.conn.mu.RLock()
	closed := c.conn.closed
	c.conn.mu.RUnlock()
	if closed {
		return device.ErrNotConnected
	}

	ch := make(chan error, 1)
	go func() {
		_, err := c.char.Write(payload)
		ch <- err
	}()

	timer := time.NewTimer(c.conn.writeTimeout)
	defer timer.Stop()

	select {
	case err := <-ch:
		if err != nil {
			return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, device.NormalizeError(err))
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, device.NormalizeError(ctx.Err()))
	case <-timer.C:
		return fmt.Errorf("timeout writing characteristic %s after %v: %w", c.uuid, c.conn.writeTimeout, device.ErrTimeout)
	}
}
