package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/tracer"
	"github.com/srg/blemotor/scanner"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel/trace"
)

// StartScan clears the discovered set and scans for the configured window.
// It returns once the scan is armed; discovery continues in the background
// and ends by timeout, StopScan, adapter failure, or Close.
// The window is enforced by a controller timer, so a hung adapter cannot keep the scan active.
func (c *Controller) StartScan(ctx context.Context) (err error) {
	_, span := tracer.StartSpan(ctx, "controller.start_scan",
		trace.WithAttributes(tracer.StringAttr("scan.window", c.opts.ScanWindow.String())))
	defer func() { tracer.End(span, err) }()

	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.scanning {
		c.mu.Unlock()
		return ErrScanInProgress
	}

	c.scanGen++
	gen := c.scanGen
	deadline := time.Now().Add(c.opts.ScanWindow)
	scanCtx, cancel := context.WithDeadline(c.lifetime, deadline)

	c.scanning = true
	c.scanDeadline = deadline
	c.scanCancel = cancel
	c.scanTimer = time.AfterFunc(c.opts.ScanWindow, func() {
		c.finishScan(gen, nil)
	})
	c.devices = orderedmap.New[string, Device]()

	prev := c.scanDone
	done := make(chan struct{})
	c.scanDone = done
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"generation": gen,
		"window":     c.opts.ScanWindow,
	}).Info("Scanning for BLE devices...")
	c.emit(EventScanStarted, nil, nil)

	c.group.Go(scanCtx, "controller-scan", func(ctx context.Context) {
		defer close(done)
		defer cancel()
		c.runScan(ctx, gen, prev)
	})
	return nil
}

func (c *Controller) runScan(ctx context.Context, gen uint64, prev <-chan struct{}) {
	// a previous scan may still be winding down at the adapter
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			c.finishScan(gen, nil)
			return
		}
	}

	// reset stale adapter scan state; failures here are expected and harmless
	if err := c.adapter.StopScan(); err != nil {
		c.logger.WithError(err).Debug("Stop scan error while resetting adapter")
	}
	if c.opts.ScanResetDelay > 0 {
		timer := time.NewTimer(c.opts.ScanResetDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			c.finishScan(gen, nil)
			return
		}
	}

	// every sighting is inspected: a peer may be unnamed until its scan response arrives
	disc := c.scanner.Discover(ctx, scanner.Options{AllowDuplicates: true})
	for adv := range disc.All() {
		c.addDevice(gen, adv)
	}

	if err := disc.Err(); err != nil {
		c.finishScan(gen, &AdapterError{Op: OpScan, Err: err})
		return
	}
	c.finishScan(gen, nil)
}

// addDevice records a named advertisement of the current scan, first sighting wins
func (c *Controller) addDevice(gen uint64, adv device.Advertisement) {
	if adv.LocalName() == "" {
		return
	}

	c.mu.Lock()
	if !c.scanning || c.scanGen != gen {
		c.mu.Unlock()
		return
	}
	if _, ok := c.devices.Get(adv.ID()); ok {
		c.mu.Unlock()
		return
	}
	dev := newDevice(adv, time.Now())
	c.devices.Set(dev.ID, dev)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"address": dev.ID,
		"name":    dev.Name,
		"rssi":    dev.RSSI,
	}).Info("Discovered device")
	c.emit(EventDeviceDiscovered, &dev, nil)
}

// finishScan marks scan gen inactive. Only the first call per generation has any effect.
func (c *Controller) finishScan(gen uint64, err error) bool {
	c.mu.Lock()
	if !c.scanning || c.scanGen != gen {
		c.mu.Unlock()
		return false
	}
	c.scanning = false
	c.scanDeadline = time.Time{}
	cancel := c.scanCancel
	c.scanCancel = nil
	timer := c.scanTimer
	c.scanTimer = nil
	found := c.devices.Len()
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}

	fields := logrus.Fields{"generation": gen, "device_count": found}
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Error("Scan error")
	} else {
		c.logger.WithFields(fields).Info("Scan stopped")
	}
	c.emit(EventScanStopped, nil, err)
	return true
}

// StopScan cancels the active scan. It is a no-op when no scan is active.
// Advertisements delivered after it returns are ignored.
func (c *Controller) StopScan() {
	c.mu.Lock()
	gen := c.scanGen
	c.mu.Unlock()

	c.finishScan(gen, nil)
}
