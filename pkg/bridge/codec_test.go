// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package bridge

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func mustCBOR(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := cbor.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// decodeAll feeds a byte slice through a decoder and collects messages and
// errors.
func decodeAll(t *testing.T, d *Decoder, data []byte) ([]*Message, []error) {
	t.Helper()
	var msgs []*Message
	var errs []error
	for _, b := range data {
		msg, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if msg != nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs, errs
}

func decodeOne(t *testing.T, frame []byte) *Message {
	t.Helper()
	msgs, errs := decodeAll(t, NewDecoder(), frame)
	if len(errs) != 0 {
		t.Fatalf("decode errors: %v", errs)
	}
	if len(msgs) != 1 {
		t.Fatalf("decoded %d messages, want 1", len(msgs))
	}
	return msgs[0]
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{"scan stop with no fields", NewScanStop()},
		{"scan start", NewScanStart(2000)},
		{"connect", NewConnect("C4:64:E3:8D:9A:10")},
		{"subscribe", NewSubscribe(0)},
		{"write control point", NewWrite(0, []byte{0x01, 0x04})},
		{"write with framing bytes in data", NewWrite(1, []byte{StartByte, EndByte, EscByte, 0x00})},
		{"write full chunk", NewWrite(1, bytes.Repeat([]byte{0x7E}, 20))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeMessage(tt.msg)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if frame[0] != StartByte || frame[len(frame)-1] != EndByte {
				t.Fatalf("frame not delimited: % X", frame)
			}
			// No unescaped markers inside the frame.
			for i, b := range frame[1 : len(frame)-1] {
				if b == StartByte || b == EndByte {
					t.Fatalf("unescaped marker 0x%02X at offset %d", b, i+1)
				}
			}

			got := decodeOne(t, frame)
			if got.Type != tt.msg.Type {
				t.Errorf("Type = 0x%02X, want 0x%02X", got.Type, tt.msg.Type)
			}
			if len(tt.msg.Fields) == 0 && got.Fields != nil {
				t.Errorf("Fields = %v, want nil", got.Fields)
			}
		})
	}
}

func TestRoundTripPreservesFields(t *testing.T) {
	frame, err := EncodeMessage(NewWrite(1, []byte{0xAA, 0xBB, 0xCC}))
	if err != nil {
		t.Fatal(err)
	}
	got := decodeOne(t, frame)

	char, ok := got.Uint(fieldChar)
	if !ok || char != 1 {
		t.Errorf("char = %d (%v), want 1", char, ok)
	}
	data, ok := got.Bytes(fieldData)
	if !ok || !bytes.Equal(data, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("data = % X (%v), want AA BB CC", data, ok)
	}
}

func TestDecoderResyncAfterGarbage(t *testing.T) {
	frame, err := EncodeMessage(NewScanStop())
	if err != nil {
		t.Fatal(err)
	}

	stream := append([]byte{0x00, 0x42, EndByte, 0xFF}, frame...)
	msgs, _ := decodeAll(t, NewDecoder(), stream)
	if len(msgs) != 1 || msgs[0].Type != MsgScanStop {
		t.Fatalf("decoded %v, want one scan-stop", msgs)
	}
}

func TestDecoderRejectsCorruptCRC(t *testing.T) {
	frame, err := EncodeMessage(NewConnect("AA:BB:CC:DD:EE:FF"))
	if err != nil {
		t.Fatal(err)
	}
	// Flip a body byte. The CBOR address string contains no marker bytes, so
	// the frame structure survives and only the CRC check can catch it.
	corrupt := append([]byte(nil), frame...)
	corrupt[5] ^= 0x01

	msgs, errs := decodeAll(t, NewDecoder(), corrupt)
	if len(msgs) != 0 {
		t.Fatalf("decoded %d messages from a corrupt frame", len(msgs))
	}
	if len(errs) == 0 {
		t.Fatal("corrupt frame produced no error")
	}
}

func TestDecoderRecoversAfterCorruptFrame(t *testing.T) {
	good, err := EncodeMessage(NewScanStart(1000))
	if err != nil {
		t.Fatal(err)
	}
	corrupt := append([]byte(nil), good...)
	corrupt[3] ^= 0xFF

	stream := append(append([]byte(nil), corrupt...), good...)
	msgs, errs := decodeAll(t, NewDecoder(), stream)
	if len(errs) == 0 {
		t.Error("corrupt frame produced no error")
	}
	if len(msgs) != 1 || msgs[0].Type != MsgScanStart {
		t.Fatalf("decoded %v, want one scan-start after recovery", msgs)
	}
}

func TestDecoderTruncatedFrameRestart(t *testing.T) {
	frame, err := EncodeMessage(NewScanStop())
	if err != nil {
		t.Fatal(err)
	}
	// A new START in the middle of a frame abandons the partial one.
	stream := append(append([]byte(nil), frame[:3]...), frame...)
	msgs, _ := decodeAll(t, NewDecoder(), stream)
	if len(msgs) != 1 {
		t.Fatalf("decoded %d messages, want 1", len(msgs))
	}
}

func TestEncodeRejectsOversizeBody(t *testing.T) {
	if _, err := EncodeMessage(NewWrite(1, make([]byte, MaxBodySize))); err == nil {
		t.Fatal("oversize message encoded without error")
	}
}

func TestParseMessageRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"not cbor", []byte{0xFF, 0xFF, 0xFF}},
		{"wrong arity", mustCBOR(t, []interface{}{uint64(1)})},
		{"non-integer type", mustCBOR(t, []interface{}{"one", nil})},
		{"type out of range", mustCBOR(t, []interface{}{uint64(300), nil})},
		{"fields not a map", mustCBOR(t, []interface{}{uint64(1), "x"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage(tt.body); err == nil {
				t.Error("malformed body parsed without error")
			}
		})
	}
}

func TestCalculateCRC(t *testing.T) {
	// CRC-16-CCITT with 0xFFFF initial: the standard "123456789" vector.
	if got := CalculateCRC([]byte("123456789")); got != 0x29B1 {
		t.Errorf("CRC = 0x%04X, want 0x29B1", got)
	}
	if got := CalculateCRC(nil); got != 0xFFFF {
		t.Errorf("CRC of empty input = 0x%04X, want 0xFFFF", got)
	}
}
