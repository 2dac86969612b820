// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 oltaco

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/oltaco/nrf-dfu/pkg/dfu"
	"github.com/oltaco/nrf-dfu/pkg/dfupkg"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	updatePRN         uint16
	updateDelay       float64
	updatePacketDelay float64
	updateMTU         int
	updateTimeout     float64
	updateRetry       int
)

var updateCmd = &cobra.Command{
	Use:   "update <file.zip> <device>",
	Short: "Update a device's firmware over buttonless DFU",
	Long: `Perform a complete firmware update: find the device, command it into its
bootloader, rediscover it, and stream the firmware image.

The device argument is an advertised name or a BLE address. The firmware file
is a DFU ZIP package as produced by nrfutil (application images only).

If the transfer times out on the size command, raise --delay; on flaky links,
lower --prn so receipt checks happen more often.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().Uint16Var(&updatePRN, "prn", dfu.DefaultPRNInterval, "Packet receipt notification interval in chunks (0 disables)")
	updateCmd.Flags().Float64Var(&updateDelay, "delay", dfu.DefaultStartDelay.Seconds(), "Pause after START_DFU before the size packet, in seconds")
	updateCmd.Flags().Float64Var(&updatePacketDelay, "packet-delay", 0, "Pause between image chunks, in seconds")
	updateCmd.Flags().IntVar(&updateMTU, "mtu", 23, "ATT MTU of the link; chunk size is MTU minus 3")
	updateCmd.Flags().Float64Var(&updateTimeout, "timeout", dfu.DefaultUpdateTimeout.Seconds(), "Overall update deadline, in seconds")
	updateCmd.Flags().IntVar(&updateRetry, "retry", 3, "Number of DFU connection retries")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	file, target := args[0], args[1]

	if updateMTU < 4 {
		return fmt.Errorf("--mtu must be at least 4, got %d", updateMTU)
	}

	pkg, err := dfupkg.Load(file)
	if err != nil {
		return err
	}

	log := newCLILogger()
	transport, cleanup, connInfo, err := openTransport(log)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("nrfdfu - Firmware Update\n")
	fmt.Printf("Package: %s (%d bytes image, %d bytes init packet)\n", pkg.Name, len(pkg.Image), len(pkg.InitData))
	fmt.Printf("BLE: %s\n\n", connInfo)

	bar := progressbar.NewOptions(len(pkg.Image),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Uploading"),
		progressbar.OptionShowBytes(true),
	)

	updater := dfu.NewUpdater(transport,
		dfu.WithPRN(updatePRN),
		dfu.WithStartDelay(secondsToDuration(updateDelay)),
		dfu.WithPacketDelay(secondsToDuration(updatePacketDelay)),
		dfu.WithChunkSize(updateMTU-3),
		dfu.WithUpdateTimeout(secondsToDuration(updateTimeout)),
		dfu.WithConnectRetries(updateRetry),
		dfu.WithLogger(log),
		dfu.WithProgress(func(p dfu.Progress) {
			switch p.Phase {
			case dfu.PhaseStreaming:
				bar.Set(p.BytesSent)
			case dfu.PhaseComplete:
				bar.Finish()
				fmt.Println()
			}
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err := updater.Update(ctx, target, dfu.FirmwarePackage{Image: pkg.Image, InitData: pkg.InitData}); err != nil {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "If the transfer timed out, try raising --delay or lowering --prn.\n")
		return fmt.Errorf("update %s: %w", target, err)
	}

	fmt.Printf("Update completed in %s. Device is rebooting into the new firmware.\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
