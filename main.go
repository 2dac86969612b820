// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco
//
// nrfdfu - Nordic legacy DFU firmware update utility
//
// A CLI tool for updating nRF5 device firmware over BLE using the legacy
// buttonless DFU protocol.

package main

import (
	"os"

	"github.com/oltaco/nrf-dfu/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
