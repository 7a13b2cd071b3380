package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blemotor/controller"
)

// pulseCmd represents the pulse command
var pulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Connect to the actuator and send on/off pulses",
	Long: `Find the actuator, connect to it and send one or more pulses.
A pulse writes the "on" payload, holds it, then writes the "off" payload.

Without --id a scan runs until the actuator advertises or the scan window ends.`,
	Example: `  blemotor pulse
  blemotor pulse --id AA:BB:CC:DD:EE:01 --count 3 --interval 2s`,
	Args: cobra.NoArgs,
	RunE: runPulse,
}

var (
	pulseID       string
	pulseCount    int
	pulseInterval time.Duration
)

func init() {
	pulseCmd.Flags().StringVar(&pulseID, "id", "", "Actuator address, skips the scan")
	pulseCmd.Flags().IntVarP(&pulseCount, "count", "n", 1, "Number of pulses to send")
	pulseCmd.Flags().DurationVar(&pulseInterval, "interval", time.Second, "Pause between pulses")
}

func runPulse(cmd *cobra.Command, _ []string) error {
	if pulseCount < 1 {
		return fmt.Errorf("invalid count: %d (must be at least 1)", pulseCount)
	}
	if pulseInterval < 0 {
		return fmt.Errorf("invalid interval: %s (must not be negative)", pulseInterval)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, stop := interruptContext(cmd.Context(), cmd.ErrOrStderr(), "pulse")
	defer stop()

	a, err := newApp(ctx, cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Pulsing "+cfg.Target.Name, "scanning", "done")
	progress.Start()
	defer progress.Stop()
	setPhase := progress.Callback()

	dev, err := findTarget(ctx, a.ctrl, pulseID)
	if err != nil {
		return err
	}

	setPhase("connecting")
	if err := a.ctrl.Connect(ctx, dev); err != nil {
		return err
	}
	// Disconnect waits for a pulse in flight, so "off" is always delivered
	defer func() { _ = a.ctrl.Disconnect(context.WithoutCancel(ctx)) }()

	for i := 1; i <= pulseCount; i++ {
		setPhase(fmt.Sprintf("pulse %d/%d", i, pulseCount))
		if err := a.ctrl.SendPulse(ctx); err != nil {
			return err
		}
		if i < pulseCount {
			if err := sleepContext(ctx, pulseInterval); err != nil {
				return err
			}
		}
	}
	setPhase("done")

	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d pulse(s) to %s (%s)\n", pulseCount, dev.Name, dev.ID)
	return nil
}

// findTarget returns the device to connect to: the one named by id, or the
// first advertisement of the target name seen by a fresh scan.
func findTarget(ctx context.Context, ctrl *controller.Controller, id string) (controller.Device, error) {
	target := ctrl.Options().TargetName
	if id != "" {
		return controller.Device{ID: id, Name: target}, nil
	}

	events := ctrl.Subscribe()
	defer ctrl.Unsubscribe(events)

	if err := ctrl.StartScan(ctx); err != nil {
		return controller.Device{}, err
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return controller.Device{}, controller.ErrClosed
			}
			switch ev.Type {
			case controller.EventDeviceDiscovered:
				if ev.Device != nil && ev.Device.Name == target {
					return *ev.Device, nil
				}
			case controller.EventScanStopped:
				if ev.Err != nil {
					return controller.Device{}, ev.Err
				}
				// the discovery event may have been overwritten in a full buffer
				for _, dev := range ev.Snapshot.Devices {
					if dev.Name == target {
						return dev, nil
					}
				}
				return controller.Device{}, ErrTargetNotFound
			}
		case <-ctx.Done():
			ctrl.StopScan()
			return controller.Device{}, ctx.Err()
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
