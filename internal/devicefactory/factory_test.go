package devicefactory

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemotor/internal/device"
	goble "github.com/srg/blemotor/internal/device/go-ble"
	tinyble "github.com/srg/blemotor/internal/device/tinygo-ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdapter(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		check   func(t *testing.T, a device.Adapter)
	}{
		{
			name:    "empty backend defaults to go-ble",
			backend: "",
			check: func(t *testing.T, a device.Adapter) {
				assert.IsType(t, &goble.Adapter{}, a)
			},
		},
		{
			name:    "go-ble by name",
			backend: "go-ble",
			check: func(t *testing.T, a device.Adapter) {
				assert.IsType(t, &goble.Adapter{}, a)
			},
		},
		{
			name:    "tinygo is case insensitive",
			backend: " TinyGo ",
			check: func(t *testing.T, a device.Adapter) {
				assert.IsType(t, &tinyble.Adapter{}, a)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAdapter(Options{Backend: tt.backend}, logrus.New())
			require.NoError(t, err)
			tt.check(t, a)
		})
	}

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewAdapter(Options{Backend: "bluez-raw"}, nil)
		require.ErrorIs(t, err, device.ErrUnsupported)
		assert.Contains(t, err.Error(), "go-ble, tinygo")
	})
}

func TestBackends(t *testing.T) {
	assert.Equal(t, []string{"go-ble", "tinygo"}, Backends())
}
