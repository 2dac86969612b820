// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EncodeMessage encodes a message to wire format: framing, length byte, CBOR
// body, CRC, byte stuffing.
func EncodeMessage(m *Message) ([]byte, error) {
	body, err := encodeCBORBody(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("CBOR body too large: %d bytes (max %d)", len(body), MaxBodySize)
	}

	// The data section is length byte + body; the CRC covers it and is
	// appended big-endian. Stuffing applies to everything between the
	// framing bytes.
	data := make([]byte, 0, len(body)+3)
	data = append(data, uint8(len(body)))
	data = append(data, body...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// encodeCBORBody creates the CBOR array [msg_type, fields_map].
func encodeCBORBody(m *Message) ([]byte, error) {
	var msg interface{}
	if len(m.Fields) == 0 {
		msg = []interface{}{uint64(m.Type), nil}
	} else {
		msg = []interface{}{uint64(m.Type), m.Fields}
	}
	return cbor.Marshal(msg)
}

// stuffBytes escapes frame marker bytes: START, END and ESC become
// ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}
