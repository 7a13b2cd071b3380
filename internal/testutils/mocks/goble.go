package mocks

import (
	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockBLEAdvertisement is a mock implementation of ble.Advertisement
type MockBLEAdvertisement struct {
	mock.Mock
}

func (m *MockBLEAdvertisement) LocalName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBLEAdvertisement) ManufacturerData() []byte {
	args := m.Called()
	data, _ := args.Get(0).([]byte)
	return data
}

func (m *MockBLEAdvertisement) ServiceData() []ble.ServiceData {
	args := m.Called()
	data, _ := args.Get(0).([]ble.ServiceData)
	return data
}

func (m *MockBLEAdvertisement) Services() []ble.UUID {
	args := m.Called()
	uuids, _ := args.Get(0).([]ble.UUID)
	return uuids
}

func (m *MockBLEAdvertisement) OverflowService() []ble.UUID {
	args := m.Called()
	uuids, _ := args.Get(0).([]ble.UUID)
	return uuids
}

func (m *MockBLEAdvertisement) TxPowerLevel() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockBLEAdvertisement) Connectable() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockBLEAdvertisement) SolicitedService() []ble.UUID {
	args := m.Called()
	uuids, _ := args.Get(0).([]ble.UUID)
	return uuids
}

func (m *MockBLEAdvertisement) RSSI() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockBLEAdvertisement) Addr() ble.Addr {
	args := m.Called()
	addr, _ := args.Get(0).(ble.Addr)
	return addr
}
