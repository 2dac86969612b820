// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Message is one decoded bridge message: a type byte and an integer-keyed
// field map (nil for messages without fields).
type Message struct {
	Type   uint8
	Fields map[int]interface{}
}

// ParseMessage parses a CBOR message body: [msg_type, fields_map].
func ParseMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR body")
	}

	var raw []interface{}
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("expected 2-element array, got %d elements", len(raw))
	}

	msg := &Message{}
	switch v := raw[0].(type) {
	case uint64:
		if v > 255 {
			return nil, fmt.Errorf("message type out of range: %d", v)
		}
		msg.Type = uint8(v)
	default:
		return nil, fmt.Errorf("expected uint for message type, got %T", raw[0])
	}

	if raw[1] == nil {
		return msg, nil
	}
	fields, ok := raw[1].(map[interface{}]interface{})
	if !ok {
		return nil, fmt.Errorf("expected map or nil for fields, got %T", raw[1])
	}
	msg.Fields = make(map[int]interface{}, len(fields))
	for key, val := range fields {
		switch k := key.(type) {
		case uint64:
			msg.Fields[int(k)] = val
		case int64:
			msg.Fields[int(k)] = val
		default:
			return nil, fmt.Errorf("expected integer map key, got %T", key)
		}
	}
	return msg, nil
}

// Uint extracts a uint64 field.
func (m *Message) Uint(key int) (uint64, bool) {
	v, ok := m.Fields[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		if val >= 0 {
			return uint64(val), true
		}
	}
	return 0, false
}

// String extracts a string field.
func (m *Message) String(key int) (string, bool) {
	v, ok := m.Fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bytes extracts a byte-string field.
func (m *Message) Bytes(key int) ([]byte, bool) {
	v, ok := m.Fields[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Strings extracts a field holding an array of strings. Non-string elements
// are skipped.
func (m *Message) Strings(key int) []string {
	v, ok := m.Fields[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Request constructors.

// NewScanStart asks the bridge to start advertising discovery for the given
// window in milliseconds.
func NewScanStart(timeoutMs uint64) *Message {
	return &Message{Type: MsgScanStart, Fields: map[int]interface{}{fieldTimeout: timeoutMs}}
}

// NewScanStop cancels an active scan.
func NewScanStop() *Message {
	return &Message{Type: MsgScanStop}
}

// NewConnect asks the bridge to connect to the device at the given address
// and discover the DFU characteristics.
func NewConnect(address string) *Message {
	return &Message{Type: MsgConnect, Fields: map[int]interface{}{fieldAddress: address}}
}

// NewDisconnect drops the bridge's device connection.
func NewDisconnect() *Message {
	return &Message{Type: MsgDisconnect}
}

// NewWrite writes data to the characteristic identified by char.
func NewWrite(char uint8, data []byte) *Message {
	return &Message{Type: MsgWrite, Fields: map[int]interface{}{
		fieldChar: uint64(char),
		fieldData: data,
	}}
}

// NewSubscribe enables notifications on the characteristic identified by
// char.
func NewSubscribe(char uint8) *Message {
	return &Message{Type: MsgSubscribe, Fields: map[int]interface{}{fieldChar: uint64(char)}}
}
