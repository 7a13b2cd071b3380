package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/groutine"
)

// DefaultBuffer is the number of advertisements held between the adapter callback and the consumer
const DefaultBuffer = 64

// Options configures one discovery
type Options struct {
	// Window bounds the scan, measured from when ranging starts. Zero means until stopped.
	Window time.Duration
	// Deadline, when set, takes precedence over Window.
	Deadline time.Time
	// Services restricts results to peers advertising one of these UUIDs.
	Services []string
	// AllowDuplicates yields every sighting; otherwise only the first per ID.
	AllowDuplicates bool
	Buffer          int
}

// Scanner turns the adapter's callback scan into discovery sequences
type Scanner struct {
	adapter device.Adapter
	logger  *logrus.Logger
}

// New creates a new BLE scanner over an opened adapter
func New(adapter device.Adapter, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{adapter: adapter, logger: logger}
}

// Discover prepares a discovery. Nothing happens at the adapter until All is ranged.
func (s *Scanner) Discover(ctx context.Context, opts Options) *Discovery {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Discovery{
		scanner: s,
		parent:  ctx,
		opts:    opts,
		done:    make(chan struct{}),
	}
}

// Discovery is a single-use, cancellable, lazily started scan.
type Discovery struct {
	scanner *Scanner
	parent  context.Context
	opts    Options

	started atomic.Bool
	dropped atomic.Int64
	seen    atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	err     error
	done    chan struct{}
}

// All returns the advertisements in arrival order. The sequence ends when the window
// elapses, Stop is called, the parent context is cancelled, the consumer stops ranging,
// or the adapter fails (see Err). Only the first range over a Discovery scans.
func (d *Discovery) All() iter.Seq[device.Advertisement] {
	return func(yield func(device.Advertisement) bool) {
		if !d.started.CompareAndSwap(false, true) {
			d.scanner.logger.Warn("Discovery ranged more than once; a new Discover call is required")
			return
		}
		defer close(d.done)

		ctx, cancel := d.scanContext()
		defer cancel()

		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		d.cancel = cancel
		d.mu.Unlock()

		ads := make(chan device.Advertisement, d.opts.Buffer)
		scanErr := make(chan error, 1)

		groutine.Go(ctx, "ble-discovery", func(ctx context.Context) {
			scanErr <- d.scanner.adapter.Scan(ctx, d.opts.Services, func(adv device.Advertisement) {
				if ctx.Err() != nil {
					return
				}
				select {
				case ads <- adv:
				default:
					d.dropped.Add(1)
				}
			})
		})

		d.scanner.logger.WithFields(logrus.Fields{
			"window":   d.opts.Window,
			"services": d.opts.Services,
		}).Debug("Discovery started")

		seen := make(map[string]struct{})
		accept := func(adv device.Advertisement) bool {
			if d.opts.AllowDuplicates {
				return true
			}
			if _, dup := seen[adv.ID()]; dup {
				return false
			}
			seen[adv.ID()] = struct{}{}
			return true
		}

		for {
			select {
			case adv := <-ads:
				d.seen.Add(1)
				if !accept(adv) {
					continue
				}
				if !yield(adv) {
					d.finish(cancel, scanErr)
					return
				}
			case err := <-scanErr:
				d.setErr(err)
				// the adapter stopped on its own; hand over what it already delivered
				for {
					select {
					case adv := <-ads:
						d.seen.Add(1)
						if !accept(adv) {
							continue
						}
						if d.isStopped() || !yield(adv) {
							return
						}
					default:
						return
					}
				}
			case <-ctx.Done():
				d.finish(cancel, scanErr)
				return
			}
		}
	}
}

func (d *Discovery) scanContext() (context.Context, context.CancelFunc) {
	switch {
	case !d.opts.Deadline.IsZero():
		return context.WithDeadline(d.parent, d.opts.Deadline)
	case d.opts.Window > 0:
		return context.WithTimeout(d.parent, d.opts.Window)
	default:
		return context.WithCancel(d.parent)
	}
}

// finish cancels the scan and waits for the adapter to return
func (d *Discovery) finish(cancel context.CancelFunc, scanErr <-chan error) {
	cancel()
	if err := d.scanner.adapter.StopScan(); err != nil {
		d.scanner.logger.WithError(err).Debug("StopScan failed while finishing discovery")
	}
	d.setErr(<-scanErr)

	d.scanner.logger.WithFields(logrus.Fields{
		"seen":    d.seen.Load(),
		"dropped": d.dropped.Load(),
	}).Debug("Discovery finished")
}

func (d *Discovery) setErr(err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = fmt.Errorf("scan failed: %w", err)
	}
}

func (d *Discovery) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Stop ends the discovery. It is safe to call at any time and more than once.
func (d *Discovery) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.cancel != nil {
		d.cancel()
	}
}

// Err reports the adapter failure that ended the discovery, nil for window end or cancellation
func (d *Discovery) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Done is closed once a started discovery has fully finished
func (d *Discovery) Done() <-chan struct{} {
	return d.done
}

// Dropped is the number of advertisements discarded because the consumer fell behind
func (d *Discovery) Dropped() int64 {
	return d.dropped.Load()
}

// Collect runs a discovery to completion and returns what it yielded
func (s *Scanner) Collect(ctx context.Context, opts Options) ([]device.Advertisement, error) {
	disc := s.Discover(ctx, opts)

	var result []device.Advertisement
	for adv := range disc.All() {
		result = append(result, adv)
	}

	s.logger.WithField("device_count", len(result)).Info("BLE scan completed")
	return result, disc.Err()
}
