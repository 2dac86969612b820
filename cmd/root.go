// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 oltaco

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Bridge serial connection flags
	bridgePort string
	bridgeBaud int

	// Bridge WebSocket connection flags
	bridgeURL      string
	bridgeUsername string
	noSSLVerify    bool

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "nrfdfu",
	Short: "Nordic legacy DFU firmware update utility",
	Long: `nrfdfu - A CLI tool for updating nRF5 device firmware over BLE using the
legacy (unsigned) buttonless DFU protocol.

Commands the running application into its bootloader, rediscovers the device
under its bootloader identity, and streams the firmware image with
packet-receipt flow control.

BLE access modes:
  Local adapter: the default, uses the machine's Bluetooth adapter
  Serial bridge: --bridge-port /dev/ttyUSB0 [--bridge-baud 115200]
  Network bridge: --bridge-url ws://host/path [--bridge-username user]

For bridge authentication, the password is read from the
NRFDFU_BRIDGE_PASSWORD environment variable, or prompted interactively if not
set. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	// Bridge serial flags
	rootCmd.PersistentFlags().StringVar(&bridgePort, "bridge-port", "", "Serial port of a BLE bridge")
	rootCmd.PersistentFlags().IntVar(&bridgeBaud, "bridge-baud", 115200, "Baud rate (serial bridge only)")

	// Bridge WebSocket flags
	rootCmd.PersistentFlags().StringVar(&bridgeURL, "bridge-url", "", "WebSocket URL of a BLE bridge (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&bridgeUsername, "bridge-username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&noSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logs")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
