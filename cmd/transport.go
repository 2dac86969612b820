// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 oltaco

package cmd

import (
	"fmt"

	"github.com/oltaco/nrf-dfu/pkg/bridge"
	"github.com/oltaco/nrf-dfu/pkg/dfu"
)

// openTransport opens the BLE access path selected by the persistent flags:
// a serial or WebSocket bridge when one is configured, the local adapter
// otherwise. The returned cleanup releases whatever was opened.
func openTransport(log dfu.Logger) (dfu.Transport, func(), string, error) {
	if bridgeURL != "" {
		password := ""
		if bridgeUsername != "" {
			var err error
			password, err = bridge.GetPassword()
			if err != nil {
				return nil, nil, "", err
			}
		}

		conn, err := bridge.OpenWebSocketConnection(bridgeURL, bridgeUsername, password, noSSLVerify)
		if err != nil {
			return nil, nil, "", err
		}

		t := bridge.NewTransport(conn, log)
		return t, func() { t.Close() }, fmt.Sprintf("WebSocket bridge: %s", bridgeURL), nil
	}

	if bridgePort != "" {
		conn, err := bridge.OpenSerialConnection(bridgePort, bridgeBaud)
		if err != nil {
			return nil, nil, "", err
		}

		t := bridge.NewTransport(conn, log)
		return t, func() { t.Close() }, fmt.Sprintf("Serial bridge: %s @ %d baud", bridgePort, bridgeBaud), nil
	}

	t, err := newBLETransport(log)
	if err != nil {
		return nil, nil, "", err
	}
	return t, func() {}, "Local adapter", nil
}
