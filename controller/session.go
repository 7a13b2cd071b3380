package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/tracer"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel/trace"
)

// Connect establishes the session with dev, which must carry the target name.
// On success the discovered set is cleared and any running scan is stopped.
// On failure no session remains and the error is returned as is; there is no retry.
func (c *Controller) Connect(ctx context.Context, dev Device) (err error) {
	ctx, span := tracer.StartSpan(ctx, "controller.connect",
		trace.WithAttributes(
			tracer.StringAttr("device.id", dev.ID),
			tracer.StringAttr("device.name", dev.Name),
		))
	defer func() { tracer.End(span, err) }()

	if dev.Name != c.opts.TargetName {
		c.logger.WithFields(logrus.Fields{
			"address":  dev.ID,
			"name":     dev.Name,
			"expected": c.opts.TargetName,
		}).Warn("Refusing to connect to non-target device")
		return &ValidationError{Name: dev.Name, Expected: c.opts.TargetName}
	}

	c.mu.Lock()
	switch {
	case c.state != stateOpen:
		c.mu.Unlock()
		return ErrClosed
	case c.session != nil:
		c.mu.Unlock()
		return device.ErrAlreadyConnected
	case c.connecting:
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.connecting = true
	c.mu.Unlock()

	c.emit(EventConnecting, &dev, nil)

	sess, err := c.establish(ctx, dev)

	c.mu.Lock()
	c.connecting = false
	if err == nil && c.state != stateOpen {
		// closed while connecting
		c.mu.Unlock()
		c.dropConnection(sess.conn, "closed during connect")
		err = ErrClosed
		c.emit(EventConnectFailed, &dev, err)
		return err
	}
	if err == nil {
		c.session = sess
		c.devices = orderedmap.New[string, Device]()
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": dev.ID,
			"error":   err,
		}).Error("Connection error")
		c.emit(EventConnectFailed, &dev, err)
		return err
	}

	c.StopScan()

	span.SetAttributes(tracer.StringAttr("session.id", sess.ID))
	c.logger.WithFields(logrus.Fields{
		"address": dev.ID,
		"session": sess.ID,
	}).Info("Connected and characteristic found")
	c.emit(EventConnected, &dev, nil)
	return nil
}

// establish performs the adapter side of Connect under the connect timeout.
// A connection that cannot be completed is cancelled before returning.
func (c *Controller) establish(ctx context.Context, dev Device) (*session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	// ensure the peer is disconnected first
	if err := device.IgnoreNotConnected(c.adapter.CancelConnection(ctx, dev.ID)); err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": dev.ID,
			"error":   err,
		}).Debug("Failed to cancel stale connection")
	}

	conn, err := c.adapter.Connect(ctx, dev.ID)
	if err != nil {
		return nil, &AdapterError{Op: OpConnect, Err: err}
	}

	if err := conn.DiscoverServicesAndCharacteristics(ctx); err != nil {
		c.dropConnection(conn, "discovery failed")
		return nil, &AdapterError{Op: OpDiscover, Err: err}
	}

	char, err := device.FindCharacteristic(conn, c.opts.ServiceUUID, c.opts.CharacteristicUUID)
	if err != nil {
		c.logger.WithField("address", dev.ID).Warn("Characteristic not found")
		c.dropConnection(conn, "characteristic not found")
		return nil, err
	}

	now := time.Now()
	return &session{
		Session: Session{
			ID:          newSessionID(now),
			Device:      dev,
			ConnectedAt: now,
		},
		conn: conn,
		char: char,
	}, nil
}

// Disconnect tears down the session. Without a session it does nothing.
// An in-flight pulse is allowed to finish first so the "off" command is not lost.
// Adapter failures are logged, never returned.
func (c *Controller) Disconnect(ctx context.Context) error {
	_, span := tracer.StartSpan(ctx, "controller.disconnect")
	defer tracer.End(span, nil)

	c.mu.Lock()
	sess := c.session
	c.session = nil
	pending := c.pulseDone
	c.mu.Unlock()

	if sess == nil {
		span.SetAttributes(tracer.StringAttr("disconnect.result", "no_session"))
		return nil
	}
	span.SetAttributes(tracer.StringAttr("session.id", sess.ID))

	if pending != nil {
		<-pending
	}
	c.dropConnection(sess.conn, "disconnect")

	c.logger.WithFields(logrus.Fields{
		"address": sess.Device.ID,
		"session": sess.ID,
	}).Info("Disconnected")
	c.emit(EventDisconnected, &sess.Device, nil)
	return nil
}
