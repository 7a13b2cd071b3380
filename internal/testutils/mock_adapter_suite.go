package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// Target profile served by the default mock peripheral
const (
	TargetName        = "ESP32_MOTOR_LED"
	TargetAddress     = "AA:BB:CC:DD:EE:01"
	TargetServiceUUID = "4fafc201-1fb5-459e-8fcc-c5c9c331914b"
	TargetCharUUID    = "beb5483e-36e1-4688-b7f5-ea07361b26a8"
)

// MockAdapterSuite provides a reusable test suite around a mocked device.Adapter.
//
// Scan replays the configured advertisements through the handler and then blocks
// until its context is done or StopScan is called, the way a real radio does.
// Connect to the peripheral address returns the configured mock connection.
//
// Custom usage:
//
//	type ControllerSuite struct {
//	    testutils.MockAdapterSuite
//	}
//
//	func (s *ControllerSuite) SetupTest() {
//	    s.WithAdvertisements().
//	        WithNewAdvertisement().WithName("Other").WithAddress("11:22:33:44:55:66").Build()
//
//	    s.MockAdapterSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockAdapterSuite struct {
	suite.Suite

	// Core test utilities
	Helper      *TestHelper
	Logger      *logrus.Logger
	TestTimeout time.Duration

	// Configuration, applied by SetupTest
	PeripheralBuilder     *PeripheralBuilder
	AdvertisementsBuilder *AdvertisementArrayBuilder
	AdvertisementInterval time.Duration // pause between replayed advertisements
	ScanErr               error         // returned by Scan right after the replay

	// Built by SetupTest
	Adapter    *mocks.MockAdapter
	Peripheral *mocks.MockConnection

	scanMu   sync.Mutex
	scanStop chan struct{}
}

// SetupSuite initializes the helper and logger once for all tests in the suite.
func (s *MockAdapterSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
	s.Logger.Debug("Suite setup completed")
}

// SetupTest builds the mock adapter from the configured builders.
func (s *MockAdapterSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewTargetPeripheralBuilder()
	}
	if s.AdvertisementsBuilder == nil {
		s.AdvertisementsBuilder = NewAdvertisementArrayBuilder().
			WithNewAdvertisement().
			WithName(TargetName).
			WithAddress(TargetAddress).
			WithRSSI(-48).
			WithServices(TargetServiceUUID).
			Build()
	}

	ads := s.AdvertisementsBuilder.Build()
	s.Peripheral = s.PeripheralBuilder.Build()
	s.Adapter = &mocks.MockAdapter{}

	s.Adapter.On("Open", mock.Anything).Return(nil).Maybe()
	s.Adapter.On("Close").Return(nil).Maybe()
	s.Adapter.On("Scan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			handler := args.Get(2).(func(device.Advertisement))
			s.replayScan(ctx, ads, handler)
		}).
		Return(s.ScanErr).Maybe()
	s.Adapter.On("StopScan").
		Run(func(mock.Arguments) { s.stopScan() }).
		Return(nil).Maybe()
	s.Adapter.On("Connect", mock.Anything, s.PeripheralBuilder.address).Return(s.Peripheral, nil).Maybe()
	s.Adapter.On("Connect", mock.Anything, mock.Anything).Return(nil, device.ErrUnknownPeer).Maybe()
	s.Adapter.On("CancelConnection", mock.Anything, mock.Anything).Return(nil).Maybe()

	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the builders after each test.
func (s *MockAdapterSuite) TearDownTest() {
	s.stopScan()
	s.PeripheralBuilder = nil
	s.AdvertisementsBuilder = nil
	s.AdvertisementInterval = 0
	s.ScanErr = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *MockAdapterSuite) WithPeripheral(address string) *PeripheralBuilder {
	s.PeripheralBuilder = NewPeripheralBuilder(address)
	return s.PeripheralBuilder
}

// WithAdvertisements returns the advertisement array builder for configuring scan results.
func (s *MockAdapterSuite) WithAdvertisements() *AdvertisementArrayBuilder {
	if s.AdvertisementsBuilder == nil {
		s.AdvertisementsBuilder = NewAdvertisementArrayBuilder()
	}
	return s.AdvertisementsBuilder
}

// TargetCharacteristic returns the mock characteristic the controller writes pulses to
func (s *MockAdapterSuite) TargetCharacteristic() *mocks.MockCharacteristic {
	return s.PeripheralBuilder.Characteristic(TargetCharUUID)
}

func (s *MockAdapterSuite) replayScan(ctx context.Context, ads []device.Advertisement, handler func(device.Advertisement)) {
	stop := make(chan struct{})
	s.scanMu.Lock()
	s.scanStop = stop
	s.scanMu.Unlock()

	for _, adv := range ads {
		if s.AdvertisementInterval > 0 {
			select {
			case <-time.After(s.AdvertisementInterval):
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
		handler(adv)
	}

	if s.ScanErr != nil {
		return
	}

	select {
	case <-ctx.Done():
	case <-stop:
	}
}

func (s *MockAdapterSuite) stopScan() {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	if s.scanStop != nil {
		close(s.scanStop)
		s.scanStop = nil
	}
}

// NewTargetPeripheralBuilder returns a builder for the target peripheral exposing the
// motor service and command characteristic, ready for further With* configuration.
func NewTargetPeripheralBuilder() *PeripheralBuilder {
	return NewPeripheralBuilder(TargetAddress).
		FromJSON(`
		{
			"services": [
				{ "uuid": "1800", "characteristics": [ { "uuid": "2a00" } ] },
				{
					"uuid": "%s",
					"characteristics": [ { "uuid": "%s" } ]
				}
			]
		}`, TargetServiceUUID, TargetCharUUID)
}
