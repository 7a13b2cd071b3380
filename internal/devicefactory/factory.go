package devicefactory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	goble "github.com/srg/blemotor/internal/device/go-ble"
	tinyble "github.com/srg/blemotor/internal/device/tinygo-ble"
)

// Backend names accepted by NewAdapter
const (
	BackendGoBLE  = "go-ble"
	BackendTinyGo = "tinygo"
)

// Options configures adapter construction
type Options struct {
	Backend      string
	WriteTimeout time.Duration
}

// Constructor builds a device.Adapter for one backend
type Constructor func(opts Options, logger *logrus.Logger) device.Adapter

// AdapterFactory maps backend names to constructors.
// This is a variable so that it can be overridden in tests.
var AdapterFactory = map[string]Constructor{
	BackendGoBLE: func(opts Options, logger *logrus.Logger) device.Adapter {
		return goble.NewAdapter(logger, opts.WriteTimeout)
	},
	BackendTinyGo: func(opts Options, logger *logrus.Logger) device.Adapter {
		return tinyble.NewAdapter(logger, opts.WriteTimeout)
	},
}

// NewAdapter creates the adapter for opts.Backend; empty means go-ble.
// The returned adapter is not opened yet.
func NewAdapter(opts Options, logger *logrus.Logger) (device.Adapter, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Backend))
	if name == "" {
		name = BackendGoBLE
	}

	ctor, ok := AdapterFactory[name]
	if !ok {
		return nil, fmt.Errorf("unknown BLE backend %q (must be one of %s): %w",
			opts.Backend, strings.Join(Backends(), ", "), device.ErrUnsupported)
	}

	if logger != nil {
		logger.WithField("backend", name).Debug("Creating BLE adapter")
	}
	return ctor(opts, logger), nil
}

// Backends returns the registered backend names, sorted
func Backends() []string {
	names := make([]string, 0, len(AdapterFactory))
	for name := range AdapterFactory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
