package tinyble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srg/blemotor/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/bluetooth"
)

func TestParseUUIDs(t *testing.T) {
	t.Run("parses dashed 128-bit UUIDs", func(t *testing.T) {
		got, err := parseUUIDs([]string{"4fafc201-1fb5-459e-8fcc-c5c9c331914b"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, device.EqualUUID("4fafc201-1fb5-459e-8fcc-c5c9c331914b", got[0].String()))
	})

	t.Run("empty filter", func(t *testing.T) {
		got, err := parseUUIDs(nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := parseUUIDs([]string{"not-a-uuid"})
		require.ErrorContains(t, err, "not-a-uuid")
	})
}

func TestConnectRequiresScannedPeer(t *testing.T) {
	a := NewAdapter(nil, 0)

	_, err := a.Connect(context.Background(), "AA:BB:CC:DD:EE:01")

	assert.ErrorIs(t, err, device.ErrUnknownPeer)
	assert.ErrorIs(t, a.CancelConnection(context.Background(), "AA:BB:CC:DD:EE:01"), device.ErrNotConnected)
}

func TestStopScanWithoutScanIsNoop(t *testing.T) {
	a := NewAdapter(nil, 0)
	assert.NoError(t, a.StopScan())
}

// fakeRadio behaves like a platform radio: StopScan only works once Scan has
// actually started, and Connect takes connectDelay to complete.
type fakeRadio struct {
	startDelay   time.Duration
	connectDelay time.Duration

	mu        sync.Mutex
	scanning  bool
	stop      chan struct{}
	scanCalls atomic.Int32
	stopCalls atomic.Int32
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{stop: make(chan struct{}, 1)}
}

func (r *fakeRadio) Enable() error { return nil }

func (r *fakeRadio) Scan(func(*bluetooth.Adapter, bluetooth.ScanResult)) error {
	r.scanCalls.Add(1)
	time.Sleep(r.startDelay)
	r.mu.Lock()
	r.scanning = true
	r.mu.Unlock()

	<-r.stop
	return nil
}

func (r *fakeRadio) StopScan() error {
	r.stopCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.scanning {
		return errors.New("not scanning")
	}
	r.scanning = false
	r.stop <- struct{}{}
	return nil
}

func (r *fakeRadio) Connect(bluetooth.Address, bluetooth.ConnectionParams) (bluetooth.Device, error) {
	time.Sleep(r.connectDelay)
	return bluetooth.Device{}, nil
}

func scanInBackground(ctx context.Context, a *Adapter) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- a.Scan(ctx, nil, func(device.Advertisement) {})
	}()
	return done
}

func TestScanWithCancelledContextSkipsRadio(t *testing.T) {
	r := newFakeRadio()
	a := newAdapterWithRadio(nil, 0, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, a.Scan(ctx, nil, func(device.Advertisement) {}))
	assert.Zero(t, r.scanCalls.Load(), "a cancelled scan MUST NOT start the radio")
	assert.NoError(t, a.StopScan())
}

func TestStopScanBeforeRadioStarts(t *testing.T) {
	// GOAL: Verify a stop that lands before the radio is scanning still ends the scan
	//
	// TEST SCENARIO: Radio takes 60ms to start → StopScan right away → first radio stop fails → retried → Scan returns

	r := newFakeRadio()
	r.startDelay = 60 * time.Millisecond
	a := newAdapterWithRadio(nil, 0, r)

	done := scanInBackground(context.Background(), a)
	require.Eventually(t, func() bool {
		a.scanMu.Lock()
		defer a.scanMu.Unlock()
		return a.scanCancel != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, a.StopScan())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Scan MUST return after StopScan even if the radio was not scanning yet")
	}
	assert.GreaterOrEqual(t, r.stopCalls.Load(), int32(2), "radio stop MUST be retried")
}

func TestScanEndsOnContextDeadline(t *testing.T) {
	r := newFakeRadio()
	r.startDelay = 40 * time.Millisecond
	a := newAdapterWithRadio(nil, 0, r)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	select {
	case err := <-scanInBackground(ctx, a):
		assert.NoError(t, err, "deadline MUST be a normal scan end")
	case <-time.After(2 * time.Second):
		t.Fatal("Scan MUST return once its context is done")
	}

	// the adapter is free for the next scan
	second, stop := context.WithCancel(context.Background())
	done := scanInBackground(second, a)
	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second Scan MUST return")
	}
}

func TestAbandonedConnectIsReleased(t *testing.T) {
	// GOAL: Verify a connection that completes after the caller timed out is disconnected, not leaked
	//
	// TEST SCENARIO: Radio connects in 100ms → caller gives up at 20ms → late device is released, never registered

	const id = "AA:BB:CC:DD:EE:01"
	r := newFakeRadio()
	r.connectDelay = 100 * time.Millisecond
	a := newAdapterWithRadio(nil, 0, r)
	a.seen.Set(id, bluetooth.Address{})

	var released atomic.Int32
	a.release = func(*bluetooth.Device) error {
		released.Add(1)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Connect(ctx, id)
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return released.Load() == 1
	}, time.Second, 5*time.Millisecond, "late connection MUST be disconnected")
	_, ok := a.conns.Get(id)
	assert.False(t, ok, "late connection MUST NOT be registered")
	assert.ErrorIs(t, a.CancelConnection(context.Background(), id), device.ErrNotConnected)
}
