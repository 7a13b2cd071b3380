// Package mocks holds testify mocks of the internal/device interfaces.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/srg/blemotor/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockAdapter is a mock implementation of device.Adapter
type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Open(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAdapter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockAdapter) Scan(ctx context.Context, services []string, handler func(device.Advertisement)) error {
	args := m.Called(ctx, services, handler)
	return args.Error(0)
}

func (m *MockAdapter) StopScan() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockAdapter) Connect(ctx context.Context, id string) (device.Connection, error) {
	args := m.Called(ctx, id)
	conn, _ := args.Get(0).(device.Connection)
	return conn, args.Error(1)
}

func (m *MockAdapter) CancelConnection(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockConnection is a mock implementation of device.Connection
type MockConnection struct {
	mock.Mock
}

func (m *MockConnection) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConnection) DiscoverServicesAndCharacteristics(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConnection) Services() []device.Service {
	args := m.Called()
	svcs, _ := args.Get(0).([]device.Service)
	return svcs
}

func (m *MockConnection) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

// MockService is a mock implementation of device.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) UUID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockService) Characteristics() []device.Characteristic {
	args := m.Called()
	chars, _ := args.Get(0).([]device.Characteristic)
	return chars
}

// Write is a single recorded characteristic write
type Write struct {
	Payload []byte
	Started time.Time
	Done    time.Time
	Err     error
}

// MockCharacteristic is a mock implementation of device.Characteristic.
// Every WriteWithResponse call is recorded, including ones that fail.
type MockCharacteristic struct {
	mock.Mock

	mu     sync.Mutex
	writes []Write
}

func (m *MockCharacteristic) UUID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockCharacteristic) WriteWithResponse(ctx context.Context, payload []byte) error {
	started := time.Now()
	args := m.Called(ctx, payload)
	err := args.Error(0)

	m.mu.Lock()
	m.writes = append(m.writes, Write{
		Payload: append([]byte(nil), payload...),
		Started: started,
		Done:    time.Now(),
		Err:     err,
	})
	m.mu.Unlock()

	return err
}

// Writes returns a copy of the recorded writes in call order
func (m *MockCharacteristic) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}
