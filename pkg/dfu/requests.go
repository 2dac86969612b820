// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import "encoding/binary"

// Request builder functions produce the exact control-point and packet
// characteristic payloads of the legacy protocol. All multi-byte fields are
// little-endian.

// StartDfuRequest builds the START_DFU command for an application-only
// update.
func StartDfuRequest() []byte {
	return []byte{byte(OpStartDfu), UpdateModeApplication}
}

// EnterBootloaderRequest builds the buttonless jump command written to the
// application-mode control point.
func EnterBootloaderRequest() []byte {
	return []byte{byte(OpEnterBootloader), UpdateModeApplication}
}

// SizeRequest builds the firmware size packet: three little-endian uint32
// fields for SoftDevice, bootloader and application image sizes. For an
// application-only update the first two are zero.
func SizeRequest(softdevice, bootloader, application uint32) []byte {
	p := make([]byte, 12)
	binary.LittleEndian.PutUint32(p[0:4], softdevice)
	binary.LittleEndian.PutUint32(p[4:8], bootloader)
	binary.LittleEndian.PutUint32(p[8:12], application)
	return p
}

// InitParamsRequest builds an INIT_DFU_PARAMS marker. The marker must be
// InitPacketBegin before streaming init data and InitPacketComplete after.
func InitParamsRequest(marker byte) []byte {
	return []byte{byte(OpInitDfuParams), marker}
}

// ReceiptNotifRequest builds the PACKET_RECEIPT_NOTIF_REQ command. An
// interval of 0 disables receipt notifications entirely.
func ReceiptNotifRequest(interval uint16) []byte {
	p := make([]byte, 3)
	p[0] = byte(OpPacketReceiptNotifReq)
	binary.LittleEndian.PutUint16(p[1:3], interval)
	return p
}

// ReceiveImageRequest builds the RECEIVE_FIRMWARE_IMAGE command announcing
// the image stream.
func ReceiveImageRequest() []byte {
	return []byte{byte(OpReceiveFirmwareImage)}
}

// ValidateRequest builds the VALIDATE command.
func ValidateRequest() []byte {
	return []byte{byte(OpValidate)}
}

// ActivateRequest builds the ACTIVATE_AND_RESET command.
func ActivateRequest() []byte {
	return []byte{byte(OpActivateAndReset)}
}

// ResetRequest builds the RESET command, used to unwedge a bootloader after
// a failed START_DFU.
func ResetRequest() []byte {
	return []byte{byte(OpReset)}
}
