// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

// Package bridge implements the wire protocol for driving a remote BLE
// bridge over a byte stream, typically a UART-attached coprocessor or a
// networked gateway.
//
// Frames are byte-stuffed: a body of CBOR plus CRC between START and END
// markers, with special bytes escaped. The body is a CBOR array
// [msg_type, fields_map]. The link is point-to-point, so frames carry no
// addressing.
//
// Transport adapts the message protocol to the dfu.Transport interface.
package bridge

// Frame marker bytes. Occurrences inside the body are escaped as
// ESC + (byte XOR EscXor).
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits. The body is a length byte plus up to MaxBodySize bytes
// of CBOR; the largest message is a notification carrying one ATT payload.
const (
	MaxBodySize  = 250
	MaxFrameSize = MaxBodySize + 3 // length + body + 2 CRC bytes
)

// CRC-16-CCITT configuration.
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Message types - requests (host → bridge) 0x01-0x2F
const (
	MsgScanStart  = 0x01
	MsgScanStop   = 0x02
	MsgConnect    = 0x10
	MsgDisconnect = 0x11
	MsgWrite      = 0x20
	MsgSubscribe  = 0x21
)

// Message types - replies and events (bridge → host) 0x30-0xEF
const (
	MsgScanResult   = 0x30
	MsgConnected    = 0x31
	MsgDisconnected = 0x32
	MsgWriteAck     = 0x33
	MsgSubscribeAck = 0x34
	MsgNotification = 0x40
	MsgError        = 0xE0
)

// CBOR field keys, shared across message types.
const (
	fieldAddress  = 1
	fieldName     = 2
	fieldServices = 3
	fieldTimeout  = 4
	fieldChar     = 5
	fieldData     = 6
	fieldCode     = 7
	fieldText     = 8
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	stateBody
	stateCRC1
	stateCRC2
)
