// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"encoding/binary"
	"fmt"
)

// Response is a control-point response frame: the echoed request opcode and
// the device's result code. A response always correlates to the most
// recently issued command.
type Response struct {
	Request Opcode
	Result  Result
}

// Notification is a classified control-point notification: either a command
// response or a packet receipt.
type Notification struct {
	// Op is the notification opcode: OpResponseCode or OpPacketReceiptNotif.
	Op Opcode

	// Response is populated when Op is OpResponseCode.
	Response Response

	// BytesReceived is populated when Op is OpPacketReceiptNotif and carries
	// the device's cumulative received byte count.
	BytesReceived uint32
}

// ParseNotification classifies a raw control-point notification.
//
// Wire formats:
//
//	response: [0x10][request opcode][result]
//	receipt:  [0x11][bytes received, uint32 LE]
func ParseNotification(data []byte) (Notification, error) {
	if len(data) == 0 {
		return Notification{}, fmt.Errorf("empty notification")
	}

	switch Opcode(data[0]) {
	case OpResponseCode:
		if len(data) < 3 {
			return Notification{}, fmt.Errorf("short response frame: %d bytes", len(data))
		}
		return Notification{
			Op: OpResponseCode,
			Response: Response{
				Request: Opcode(data[1]),
				Result:  Result(data[2]),
			},
		}, nil

	case OpPacketReceiptNotif:
		if len(data) < 5 {
			return Notification{}, fmt.Errorf("short receipt frame: %d bytes", len(data))
		}
		return Notification{
			Op:            OpPacketReceiptNotif,
			BytesReceived: binary.LittleEndian.Uint32(data[1:5]),
		}, nil

	default:
		return Notification{}, fmt.Errorf("unknown notification opcode 0x%02X", data[0])
	}
}
