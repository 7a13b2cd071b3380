package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a GATT characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID string `json:"uuid"`
}

// ServiceConfig represents a GATT service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

type writeFailure struct {
	payload []byte
	err     error
}

// PeripheralBuilder builds a mocked device.Connection with a GATT profile
// whose characteristics accept writes unless configured otherwise.
type PeripheralBuilder struct {
	address     string
	profile     DeviceProfileConfig
	discoverErr error
	cancelErr   error
	failures    map[string][]writeFailure

	chars map[string]*mocks.MockCharacteristic
}

// NewPeripheralBuilder creates a new peripheral builder for the given address
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{
		address:  address,
		failures: make(map[string][]writeFailure),
		chars:    make(map[string]*mocks.MockCharacteristic),
	}
}

// WithService adds a service to the device profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid string) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{UUID: uuid})
	return b
}

// WithDiscoverError makes service discovery fail
func (b *PeripheralBuilder) WithDiscoverError(err error) *PeripheralBuilder {
	b.discoverErr = err
	return b
}

// WithCancelError makes CancelConnection on the built connection fail
func (b *PeripheralBuilder) WithCancelError(err error) *PeripheralBuilder {
	b.cancelErr = err
	return b
}

// WithWriteError makes writes of payload to the characteristic fail with err
func (b *PeripheralBuilder) WithWriteError(charUUID string, payload []byte, err error) *PeripheralBuilder {
	key := device.NormalizeUUID(charUUID)
	b.failures[key] = append(b.failures[key], writeFailure{payload: payload, err: err})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(jsonStr), &b.profile); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}
	return b
}

// Characteristic returns the mock built for uuid, nil before Build or if absent
func (b *PeripheralBuilder) Characteristic(uuid string) *mocks.MockCharacteristic {
	return b.chars[device.NormalizeUUID(uuid)]
}

// Build creates the mock connection. Calling Build again returns a fresh mock
// tree, so recorded writes start empty.
func (b *PeripheralBuilder) Build() *mocks.MockConnection {
	b.chars = make(map[string]*mocks.MockCharacteristic)

	services := make([]device.Service, 0, len(b.profile.Services))
	for _, svcCfg := range b.profile.Services {
		chars := make([]device.Characteristic, 0, len(svcCfg.Characteristics))
		for _, charCfg := range svcCfg.Characteristics {
			char := &mocks.MockCharacteristic{}
			char.On("UUID").Return(charCfg.UUID).Maybe()

			// Specific failures first: testify matches expectations in registration order
			for _, f := range b.failures[device.NormalizeUUID(charCfg.UUID)] {
				char.On("WriteWithResponse", mock.Anything, f.payload).Return(f.err).Maybe()
			}
			char.On("WriteWithResponse", mock.Anything, mock.Anything).Return(nil).Maybe()

			b.chars[device.NormalizeUUID(charCfg.UUID)] = char
			chars = append(chars, char)
		}

		svc := &mocks.MockService{}
		svc.On("UUID").Return(svcCfg.UUID).Maybe()
		svc.On("Characteristics").Return(chars).Maybe()
		services = append(services, svc)
	}

	conn := &mocks.MockConnection{}
	conn.On("ID").Return(b.address).Maybe()
	conn.On("DiscoverServicesAndCharacteristics", mock.Anything).Return(b.discoverErr).Maybe()
	conn.On("Services").Return(services).Maybe()
	conn.On("CancelConnection").Return(b.cancelErr).Maybe()

	return conn
}
