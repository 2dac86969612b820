// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package bridge

import "fmt"

// Decoder is the frame decoder state machine. Feed it one byte at a time;
// it yields a Message whenever a complete, CRC-valid frame has been seen.
// Garbage between frames is ignored, so the decoder can be attached to a
// stream mid-frame and resynchronize on the next START byte.
type Decoder struct {
	state      int
	escapeNext bool
	length     uint8
	body       []byte
	crc        uint16
	crcData    []byte // length byte + body, the CRC input
}

// NewDecoder creates a frame decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		state:   stateIdle,
		body:    make([]byte, 0, MaxBodySize),
		crcData: make([]byte, 0, MaxBodySize+1),
	}
}

// Reset returns the decoder to idle, discarding any partial frame.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.escapeNext = false
	d.length = 0
	d.body = d.body[:0]
	d.crcData = d.crcData[:0]
	d.crc = 0
}

// DecodeByte processes a single byte. It returns a completed message, or nil
// while the frame is incomplete, or an error when the frame is rejected (the
// decoder resets itself and keeps scanning for the next START).
func (d *Decoder) DecodeByte(b byte) (*Message, error) {
	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}

	originalB := b
	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	} else {
		// Unescaped framing bytes act regardless of state.
		if originalB == StartByte {
			d.Reset()
			d.state = stateLength
			return nil, nil
		}
		if originalB == EndByte {
			return d.finish()
		}
	}

	switch d.state {
	case stateIdle:
		// Waiting for START byte.
		return nil, nil

	case stateLength:
		if b > MaxBodySize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", b, MaxBodySize)
		}
		d.length = b
		d.crcData = append(d.crcData, b)
		if b == 0 {
			d.state = stateCRC1
		} else {
			d.state = stateBody
		}
		return nil, nil

	case stateBody:
		d.body = append(d.body, b)
		d.crcData = append(d.crcData, b)
		if len(d.body) >= int(d.length) {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		// Wait for END byte.
		return nil, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// finish validates and parses the frame on the END byte.
func (d *Decoder) finish() (*Message, error) {
	if d.state != stateCRC2 {
		state := d.state
		d.Reset()
		if state == stateIdle {
			// Stray END between frames, not worth reporting.
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected END byte in state %d", state)
	}

	calculated := CalculateCRC(d.crcData)
	if d.crc != calculated {
		err := fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", calculated, d.crc)
		d.Reset()
		return nil, err
	}

	msg, err := ParseMessage(d.body)
	d.Reset()
	if err != nil {
		return nil, err
	}
	return msg, nil
}
