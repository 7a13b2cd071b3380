package device_test

import (
	"testing"

	"github.com/srg/blemotor/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestCompanyID(t *testing.T) {
	id, ok := device.CompanyID([]byte{0xE5, 0x02, 0x01})
	assert.True(t, ok)
	assert.Equal(t, uint16(0x02E5), id, "company ID MUST be little-endian")

	_, ok = device.CompanyID([]byte{0xE5})
	assert.False(t, ok, "one byte MUST NOT yield a company ID")
}

func TestManufacturer(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "espressif", data: []byte{0xE5, 0x02}, want: "Espressif"},
		{name: "apple with payload", data: []byte{0x4C, 0x00, 0x02, 0x15}, want: "Apple"},
		{name: "unknown id", data: []byte{0xFE, 0xFF, 0x01}, want: "0xFFFE"},
		{name: "too short", data: []byte{0x01}, want: ""},
		{name: "empty", data: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, device.Manufacturer(tt.data))
		})
	}
}
