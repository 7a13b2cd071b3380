// Package controller drives a single BLE actuator session: scan for peers,
// connect to the target, pulse its command characteristic, disconnect.
//
// Session state lives behind one mutex that is never held across adapter I/O.
// Scan and pulse are single-flight; at most one session exists at a time.
package controller

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/groutine"
	"github.com/srg/blemotor/internal/ringchan"
	"github.com/srg/blemotor/pkg/config"
	"github.com/srg/blemotor/scanner"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Options configures the target and timing. Zero fields take DefaultOptions values.
type Options struct {
	TargetName         string
	ServiceUUID        string
	CharacteristicUUID string
	OnPayload          []byte
	OffPayload         []byte

	ScanWindow     time.Duration
	ScanResetDelay time.Duration
	ConnectTimeout time.Duration
	PulseHold      time.Duration

	EventBuffer int
}

// DefaultOptions returns the ESP32_MOTOR_LED target with the stock timing
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig maps the application config onto controller options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TargetName:         cfg.Target.Name,
		ServiceUUID:        cfg.Target.ServiceUUID,
		CharacteristicUUID: cfg.Target.CharacteristicUUID,
		OnPayload:          []byte(cfg.Target.OnPayload),
		OffPayload:         []byte(cfg.Target.OffPayload),
		ScanWindow:         cfg.Timing.ScanWindow,
		ScanResetDelay:     cfg.Timing.ScanResetDelay,
		ConnectTimeout:     cfg.Timing.ConnectTimeout,
		PulseHold:          cfg.Timing.PulseHold,
		EventBuffer:        cfg.EventBuffer,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TargetName == "" {
		o.TargetName = def.TargetName
	}
	if o.ServiceUUID == "" {
		o.ServiceUUID = def.ServiceUUID
	}
	if o.CharacteristicUUID == "" {
		o.CharacteristicUUID = def.CharacteristicUUID
	}
	if len(o.OnPayload) == 0 {
		o.OnPayload = def.OnPayload
	}
	if len(o.OffPayload) == 0 {
		o.OffPayload = def.OffPayload
	}
	if o.ScanWindow <= 0 {
		o.ScanWindow = def.ScanWindow
	}
	if o.ScanResetDelay < 0 {
		o.ScanResetDelay = 0
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.PulseHold < 0 {
		o.PulseHold = 0
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = def.EventBuffer
	}
	return o
}

// shutdownGrace bounds how long Close waits for background work stuck in the adapter
const shutdownGrace = 2 * time.Second

type lifecycle int

const (
	stateNew lifecycle = iota
	stateOpen
	stateClosed
)

// Controller owns the adapter, the discovered-device set and the session
type Controller struct {
	adapter device.Adapter
	scanner *scanner.Scanner
	opts    Options
	logger  *logrus.Logger

	lifeMu sync.Mutex // serializes Open and Close
	group  groutine.Group

	mu           sync.Mutex
	state        lifecycle
	lifetime     context.Context
	stop         context.CancelFunc
	scanning     bool
	scanGen      uint64
	scanDeadline time.Time
	scanCancel   context.CancelFunc
	scanTimer    *time.Timer
	scanDone     chan struct{}
	devices      *orderedmap.OrderedMap[string, Device]
	connecting   bool
	pulsing      bool
	pulseDone    chan struct{}
	session      *session

	subMu      sync.Mutex
	subs       map[<-chan Event]*ringchan.RingChannel[Event]
	subsClosed bool
}

// New creates a controller over adapter. The adapter is not touched until Open.
func New(adapter device.Adapter, opts Options, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		adapter: adapter,
		scanner: scanner.New(adapter, logger),
		opts:    opts.withDefaults(),
		logger:  logger,
		devices: orderedmap.New[string, Device](),
		subs:    make(map[<-chan Event]*ringchan.RingChannel[Event]),
	}
}

// Options returns the effective options
func (c *Controller) Options() Options {
	return c.opts
}

// Open acquires the adapter. Opening an open controller is a no-op;
// a closed controller cannot be reopened.
func (c *Controller) Open(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case stateOpen:
		return nil
	case stateClosed:
		return ErrClosed
	}

	if err := c.adapter.Open(ctx); err != nil {
		c.logger.WithError(err).Error("Failed to open BLE adapter")
		return &AdapterError{Op: OpOpen, Err: err}
	}

	lifetime, stop := context.WithCancel(context.Background())
	c.mu.Lock()
	c.state = stateOpen
	c.lifetime = lifetime
	c.stop = stop
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"target":      c.opts.TargetName,
		"scan_window": c.opts.ScanWindow,
		"pulse_hold":  c.opts.PulseHold,
	}).Info("Controller opened")
	return nil
}

// Close stops scanning, waits for an in-flight pulse, tears down the session
// and releases the adapter. Subscriber channels are closed afterwards.
func (c *Controller) Close() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	if c.state != stateOpen {
		c.state = stateClosed
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	c.mu.Unlock()

	c.StopScan()
	c.stop()
	if !c.group.WaitTimeout(shutdownGrace) {
		c.logger.WithField("grace", shutdownGrace).Warn("Background scan did not return; adapter is not responding")
	}

	c.mu.Lock()
	sess := c.session
	c.session = nil
	pending := c.pulseDone
	c.devices = orderedmap.New[string, Device]()
	c.mu.Unlock()

	if pending != nil {
		<-pending
	}
	if sess != nil {
		c.dropConnection(sess.conn, "close")
	}

	var err error
	if cerr := c.adapter.Close(); cerr != nil {
		c.logger.WithError(cerr).Warn("Failed to close BLE adapter")
		err = &AdapterError{Op: OpClose, Err: cerr}
	}

	c.emit(EventClosed, nil, err)
	c.closeSubscribers()

	c.logger.Info("Controller closed")
	return err
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Open:         c.state == stateOpen,
		Scanning:     c.scanning,
		ScanDeadline: c.scanDeadline,
		Connecting:   c.connecting,
		Pulsing:      c.pulsing,
		Devices:      make([]Device, 0, c.devices.Len()),
	}
	for pair := c.devices.Oldest(); pair != nil; pair = pair.Next() {
		snap.Devices = append(snap.Devices, pair.Value)
	}
	if c.session != nil {
		s := c.session.Session
		snap.Session = &s
	}
	return snap
}

// Subscribe returns a channel of state events. A slow subscriber loses the
// oldest undelivered events rather than blocking the controller.
// After Close the returned channel is already closed.
func (c *Controller) Subscribe() <-chan Event {
	rc := ringchan.New[Event](c.opts.EventBuffer)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subsClosed {
		rc.Close()
		return rc.C()
	}
	c.subs[rc.C()] = rc
	return rc.C()
}

// Unsubscribe detaches and closes a channel returned by Subscribe
func (c *Controller) Unsubscribe(ch <-chan Event) {
	c.subMu.Lock()
	rc, ok := c.subs[ch]
	delete(c.subs, ch)
	c.subMu.Unlock()

	if ok {
		rc.Close()
	}
}

func (c *Controller) emit(t EventType, dev *Device, err error) {
	ev := Event{
		Type:     t,
		Snapshot: c.Snapshot(),
		Device:   dev,
		Err:      err,
		Time:     time.Now(),
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, rc := range c.subs {
		rc.Send(ev)
	}
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subsClosed = true
	for ch, rc := range c.subs {
		rc.Close()
		delete(c.subs, ch)
	}
}

// dropConnection cancels conn; an already-disconnected peer is not an error
func (c *Controller) dropConnection(conn device.Connection, reason string) {
	if err := device.IgnoreNotConnected(conn.CancelConnection()); err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": conn.ID(),
			"reason":  reason,
			"error":   err,
		}).Warn("Failed to cancel connection")
	}
}

func newSessionID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func (c *Controller) String() string {
	snap := c.Snapshot()
	return fmt.Sprintf("Controller{open=%t scanning=%t devices=%d connected=%t pulsing=%t}",
		snap.Open, snap.Scanning, len(snap.Devices), snap.Connected(), snap.Pulsing)
}
