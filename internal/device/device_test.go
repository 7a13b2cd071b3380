package device_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/blemotor/internal/device"
	"github.com/srg/blemotor/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *device.NotFoundError
		expected string
	}{
		{
			name:     "resource without UUIDs",
			err:      &device.NotFoundError{Resource: "service"},
			expected: "service not found",
		},
		{
			name:     "service by UUID",
			err:      &device.NotFoundError{Resource: "service", UUIDs: []string{"180f"}},
			expected: `service "180f" not found`,
		},
		{
			name:     "characteristic in service",
			err:      &device.NotFoundError{Resource: "characteristic", UUIDs: []string{"180f", "2a19"}},
			expected: `characteristic "2a19" not found in service "180f"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"darwin powered off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.ErrBluetoothOff},
		{"explicit powered off", errors.New("Bluetooth is turned off"), device.ErrBluetoothOff},
		{"device not connected", errors.New("device not connected"), device.ErrNotConnected},
		{"disconnected peer", errors.New("peripheral disconnected"), device.ErrNotConnected},
		{"already connected", errors.New("Device already connected"), device.ErrAlreadyConnected},
		{"not initialized", errors.New("connection is not initialized"), device.ErrNotInitialized},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), device.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := device.NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.target)
			assert.Contains(t, got.Error(), tt.err.Error(), "original message MUST be preserved")
		})
	}

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, device.NormalizeError(nil))
	})

	t.Run("unknown errors pass through", func(t *testing.T) {
		orig := errors.New("att: write rejected")
		assert.Same(t, orig, device.NormalizeError(orig))
	})
}

func TestIgnoreNotConnected(t *testing.T) {
	assert.NoError(t, device.IgnoreNotConnected(nil))
	assert.NoError(t, device.IgnoreNotConnected(device.ErrNotConnected))
	assert.NoError(t, device.IgnoreNotConnected(errors.New("device not connected")))
	assert.NoError(t, device.IgnoreNotConnected(fmt.Errorf("cancel: %w", device.ErrNotConnected)))

	other := errors.New("hci: command disallowed")
	assert.Equal(t, other, device.IgnoreNotConnected(other))
}

func TestConnectionError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &device.ConnectionError{State: device.AlreadyConnected, Msg: "AA:BB"})

	assert.ErrorIs(t, err, device.ErrAlreadyConnected)
	assert.NotErrorIs(t, err, device.ErrNotConnected)
	assert.True(t, device.IsConnectionState(err, device.AlreadyConnected))
	assert.False(t, device.IsConnectionState(errors.New("x"), device.AlreadyConnected))
	assert.Equal(t, "already_connected: AA:BB", errors.Unwrap(err).Error())
}

func TestFindCharacteristic(t *testing.T) {
	conn := testutils.CreateMockPeripheral(testutils.TargetAddress).
		WithService("1800").WithCharacteristic("2a00").
		WithService("4FAFC201-1FB5-459E-8FCC-C5C9C331914B").WithCharacteristic("BEB5483E-36E1-4688-B7F5-EA07361B26A8").
		Build()

	t.Run("resolves with formatting differences", func(t *testing.T) {
		char, err := device.FindCharacteristic(conn, testutils.TargetServiceUUID, testutils.TargetCharUUID)
		require.NoError(t, err)
		assert.True(t, device.EqualUUID(testutils.TargetCharUUID, char.UUID()))
	})

	t.Run("missing service", func(t *testing.T) {
		_, err := device.FindCharacteristic(conn, "180f", "2a19")

		var nf *device.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "service", nf.Resource)
	})

	t.Run("missing characteristic in present service", func(t *testing.T) {
		_, err := device.FindCharacteristic(conn, testutils.TargetServiceUUID, "2a19")

		var nf *device.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "characteristic", nf.Resource)
		assert.Equal(t, []string{testutils.TargetServiceUUID, "2a19"}, nf.UUIDs)
	})
}
