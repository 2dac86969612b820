// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 oltaco

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"time"

	"github.com/oltaco/nrf-dfu/pkg/dfu"
	"github.com/spf13/cobra"
)

var (
	scanTimeout float64
	scanPick    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List advertising BLE devices",
	Long: `Scan for advertising devices and list them with address, name, and whether
they expose the legacy DFU service.

With --pick, an interactive picker is shown instead and the chosen device's
address is printed to stdout, ready to feed into "nrfdfu update".`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Float64Var(&scanTimeout, "timeout", 5, "Scan duration in seconds")
	scanCmd.Flags().BoolVar(&scanPick, "pick", false, "Interactively pick a device and print its address")
}

func runScan(cmd *cobra.Command, args []string) error {
	log := newCLILogger()
	transport, cleanup, connInfo, err := openTransport(log)
	if err != nil {
		return err
	}
	defer cleanup()

	if !scanPick {
		fmt.Fprintf(os.Stderr, "Scanning via %s for %.1fs...\n\n", connInfo, scanTimeout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	devices, err := collectDevices(ctx, transport, secondsToDuration(scanTimeout))
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("no devices found")
	}

	if scanPick {
		chosen, err := pickDevice(devices)
		if err != nil {
			return err
		}
		fmt.Println(chosen.Address)
		return nil
	}

	fmt.Printf("%-20s %-24s %s\n", "ADDRESS", "NAME", "DFU")
	for _, adv := range devices {
		mark := ""
		if adv.HasService(dfu.ServiceUUID) {
			mark = "yes"
		}
		fmt.Printf("%-20s %-24s %s\n", adv.Address, adv.Name, mark)
	}
	return nil
}

// collectDevices runs the scan window to completion, deduplicating
// advertisements by address. A transport reports one match per Scan call, so
// the filter records everything and always declines.
func collectDevices(ctx context.Context, transport dfu.Transport, timeout time.Duration) ([]dfu.Advertisement, error) {
	var mu sync.Mutex
	seen := make(map[string]dfu.Advertisement)

	collect := func(adv dfu.Advertisement) bool {
		mu.Lock()
		defer mu.Unlock()
		// Prefer the advertisement that carries a name.
		if prev, ok := seen[adv.Address]; !ok || (prev.Name == "" && adv.Name != "") {
			seen[adv.Address] = adv
		}
		return false
	}

	_, err := transport.Scan(ctx, collect, timeout)
	if err != nil && !errors.Is(err, dfu.ErrDeviceNotFound) {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	devices := make([]dfu.Advertisement, 0, len(seen))
	for _, adv := range seen {
		devices = append(devices, adv)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })
	return devices, nil
}
