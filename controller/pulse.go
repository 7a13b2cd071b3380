package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/tracer"
	"go.opentelemetry.io/otel/trace"
)

// SendPulse writes the "on" payload, holds, then writes the "off" payload.
// Overlapping calls are rejected with ErrPulseInFlight.
func (c *Controller) SendPulse(ctx context.Context) (err error) {
	ctx, span := tracer.StartSpan(ctx, "controller.send_pulse",
		trace.WithAttributes(tracer.IntAttr("pulse.hold_ms", int(c.opts.PulseHold.Milliseconds()))))
	defer func() { tracer.End(span, err) }()

	c.mu.Lock()
	switch {
	case c.state != stateOpen:
		c.mu.Unlock()
		return ErrClosed
	case c.session == nil:
		c.mu.Unlock()
		return device.ErrNotConnected
	case c.pulsing:
		c.mu.Unlock()
		return ErrPulseInFlight
	}
	c.pulsing = true
	done := make(chan struct{})
	c.pulseDone = done
	char := c.session.char
	sid := c.session.ID
	c.mu.Unlock()

	c.emit(EventPulseStarted, nil, nil)

	func() {
		defer c.endPulse(done)
		err = c.pulse(ctx, char)
	}()

	log := c.logger.WithField("session", sid)
	if err != nil {
		log.WithError(err).Error("Pulse error")
		c.emit(EventPulseFailed, nil, err)
		return err
	}
	log.Info("Pulse complete")
	c.emit(EventPulseFinished, nil, nil)
	return nil
}

func (c *Controller) pulse(ctx context.Context, char device.Characteristic) error {
	if err := char.WriteWithResponse(ctx, c.opts.OnPayload); err != nil {
		return &AdapterError{Op: OpWriteOn, Err: err}
	}
	c.logger.WithField("payload", string(c.opts.OnPayload)).Debug("Pulse ON")

	// the hold runs from the "on" acknowledgment and is not cut short by cancellation
	time.Sleep(c.opts.PulseHold)

	if err := char.WriteWithResponse(context.WithoutCancel(ctx), c.opts.OffPayload); err != nil {
		return &AdapterError{Op: OpWriteOff, Err: err}
	}
	c.logger.WithFields(logrus.Fields{
		"payload": string(c.opts.OffPayload),
		"hold":    c.opts.PulseHold,
	}).Debug("Pulse OFF")
	return nil
}

func (c *Controller) endPulse(done chan struct{}) {
	c.mu.Lock()
	c.pulsing = false
	c.pulseDone = nil
	c.mu.Unlock()
	close(done)
}
