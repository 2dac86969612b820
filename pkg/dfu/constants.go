// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

// Package dfu implements the host side of the Nordic legacy (unsigned) DFU
// protocol over an abstract BLE transport.
//
// The package drives the full buttonless update flow: commanding an
// application-mode device into its bootloader, rediscovering it under its
// bootloader identity, and streaming a firmware image with packet-receipt
// flow control. The newer Secure DFU protocol is out of scope.
//
// See the Transfer Engine in session.go for the opcode sequence.
package dfu

import "time"

// Legacy DFU service and characteristic UUIDs.
const (
	ServiceUUID      = "00001530-1212-efde-1523-785feabcd123"
	ControlPointUUID = "00001531-1212-efde-1523-785feabcd123"
	PacketUUID       = "00001532-1212-efde-1523-785feabcd123"
	VersionUUID      = "00001534-1212-efde-1523-785feabcd123"
)

// Opcode is a legacy DFU control-point operation code.
type Opcode uint8

// Control-point opcodes.
const (
	OpStartDfu             Opcode = 0x01
	OpInitDfuParams        Opcode = 0x02
	OpReceiveFirmwareImage Opcode = 0x03
	OpValidate             Opcode = 0x04
	OpActivateAndReset     Opcode = 0x05
	OpReset                Opcode = 0x06
	OpPacketReceiptNotifReq Opcode = 0x08
	OpResponseCode         Opcode = 0x10
	OpPacketReceiptNotif   Opcode = 0x11

	// OpEnterBootloader is written to the application-mode control point to
	// trigger the buttonless jump. Numerically it collides with OpStartDfu;
	// the two are never valid on the same connection.
	OpEnterBootloader Opcode = 0x01
)

// String returns the opcode mnemonic.
func (op Opcode) String() string {
	switch op {
	case OpStartDfu:
		return "START_DFU"
	case OpInitDfuParams:
		return "INIT_DFU_PARAMS"
	case OpReceiveFirmwareImage:
		return "RECEIVE_FIRMWARE_IMAGE"
	case OpValidate:
		return "VALIDATE"
	case OpActivateAndReset:
		return "ACTIVATE_AND_RESET"
	case OpReset:
		return "RESET"
	case OpPacketReceiptNotifReq:
		return "PACKET_RECEIPT_NOTIF_REQ"
	case OpResponseCode:
		return "RESPONSE_CODE"
	case OpPacketReceiptNotif:
		return "PACKET_RECEIPT_NOTIF"
	default:
		return "UNKNOWN"
	}
}

// UpdateModeApplication selects an application-only update in START_DFU and
// in the buttonless jump command.
const UpdateModeApplication = 0x04

// Init packet stream markers (second byte of INIT_DFU_PARAMS).
const (
	InitPacketBegin    = 0x00
	InitPacketComplete = 0x01
)

// Result is a legacy DFU response result code.
type Result uint8

// Response result codes.
const (
	ResultSuccess             Result = 0x01
	ResultInvalidState        Result = 0x02
	ResultNotSupported        Result = 0x03
	ResultDataSizeExceedsLimit Result = 0x04
	ResultCrcError            Result = 0x05
	ResultOperationFailed     Result = 0x06
)

// String returns a human-readable name for the result code.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultInvalidState:
		return "invalid state"
	case ResultNotSupported:
		return "not supported"
	case ResultDataSizeExceedsLimit:
		return "data size exceeds limit"
	case ResultCrcError:
		return "CRC error"
	case ResultOperationFailed:
		return "operation failed"
	default:
		return "unknown result"
	}
}

// DefaultChunkSize is the firmware frame size for a 23-byte ATT MTU link
// (MTU minus the 3-byte ATT write header).
const DefaultChunkSize = 20

// Default protocol timings. StartTimeout is deliberately long: on START_DFU
// the bootloader erases the application flash bank before answering, which
// can take tens of seconds on slow adapters.
const (
	DefaultPRNInterval     = 8
	DefaultStartDelay      = 400 * time.Millisecond
	DefaultResponseTimeout = 30 * time.Second
	DefaultStartTimeout    = 60 * time.Second
	DefaultReceiptTimeout  = 5 * time.Second
	DefaultJumpTimeout     = 10 * time.Second
	DefaultRebootDelay     = time.Second
	DefaultScanInterval    = 2 * time.Second
	DefaultRetryPause      = 3 * time.Second
	DefaultUpdateTimeout   = 5 * time.Minute
)

// DefaultBootloaderAliases are advertised names conventionally used by
// nRF5 bootloaders after a buttonless jump. The set is configuration, not a
// protocol constant: vendors rename their bootloaders freely.
var DefaultBootloaderAliases = []string{"DfuTarg", "DFU"}
