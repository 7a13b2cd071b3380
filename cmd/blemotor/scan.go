package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blemotor/controller"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for named BLE devices",
	Long: `Scan for Bluetooth Low Energy devices for a bounded window and list
every named peer in the order it was first seen. The actuator is highlighted.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
)

var validFormats = []string{"table", "json"}

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 15*time.Second, "Scan window")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("duration") {
		cfg.Timing.ScanWindow = scanDuration
	}
	if cmd.Flags().Changed("format") {
		cfg.OutputFormat = scanFormat
	}
	if !slices.Contains(validFormats, cfg.OutputFormat) {
		return fmt.Errorf("invalid format: %s (must be one of: %s)", cfg.OutputFormat, strings.Join(validFormats, ", "))
	}
	if cfg.Timing.ScanWindow <= 0 {
		return fmt.Errorf("invalid duration: %s (must be positive)", cfg.Timing.ScanWindow)
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, stop := interruptContext(cmd.Context(), cmd.ErrOrStderr(), "scan")
	defer stop()

	a, err := newApp(ctx, cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	devices, err := scanOnce(ctx, a.ctrl, cmd.ErrOrStderr())
	// Ctrl+C still prints what was found so far
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if cfg.OutputFormat == "json" {
		return displayDevicesJSON(cmd.OutOrStdout(), devices)
	}
	return displayDevicesTable(cmd.OutOrStdout(), devices, cfg.Target.Name)
}

// scanOnce runs one scan window and returns the devices it discovered
func scanOnce(ctx context.Context, ctrl *controller.Controller, progressOut io.Writer) ([]controller.Device, error) {
	events := ctrl.Subscribe()
	defer ctrl.Unsubscribe(events)

	progress := NewCountdownProgressPrinter(progressOut, "Scanning for BLE devices", "scanning", ctrl.Options().ScanWindow)
	progress.Start()
	defer progress.Stop()

	if err := ctrl.StartScan(ctx); err != nil {
		return nil, err
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, controller.ErrClosed
			}
			if ev.Type == controller.EventScanStopped {
				return ev.Snapshot.Devices, ev.Err
			}
		case <-ctx.Done():
			devices := ctrl.Snapshot().Devices
			ctrl.StopScan()
			return devices, ctx.Err()
		}
	}
}

func displayDevicesTable(out io.Writer, devices []controller.Device, target string) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tVENDOR\tSERVICES\tSEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, dev := range devices {
		name := dev.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(dev.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		vendor := dev.Manufacturer
		if vendor == "" {
			vendor = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\t%s\n",
			name, dev.ID, dev.RSSI, vendor, services, dev.SeenAt.Format(time.TimeOnly))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	// colour after alignment: escape codes would skew tabwriter's widths
	highlight := color.New(color.FgGreen, color.Bold)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for i, line := range lines {
		if i >= 2 && devices[i-2].Name == target {
			line = highlight.Sprint(line)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func displayDevicesJSON(out io.Writer, devices []controller.Device) error {
	if devices == nil {
		devices = []controller.Device{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
