// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"errors"
	"fmt"
	"time"
)

// ErrDeviceNotFound is returned when scanning exhausts its timeout budget
// without matching the target device.
var ErrDeviceNotFound = errors.New("device not found")

// TimeoutError indicates that no matching notification arrived for a command
// within the configured wait.
type TimeoutError struct {
	Op   Opcode
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout (%s) waiting for response to %s", e.Wait, e.Op)
}

// UnexpectedResponseError indicates a response echoing a different opcode
// than the outstanding command. The legacy protocol is strictly
// request/response, so this is unrecoverable.
type UnexpectedResponseError struct {
	Expected Opcode
	Got      Opcode
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response: expected %s, got %s", e.Expected, e.Got)
}

// StatusError indicates the device rejected a command with a non-success
// result code.
type StatusError struct {
	Op     Opcode
	Result Result
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s rejected: %s (0x%02X)", e.Op, e.Result, uint8(e.Result))
}

// CountMismatchError indicates a packet receipt notification reporting a
// cumulative byte count different from what was sent. The legacy protocol
// has no resumable offset, so the whole transfer must be restarted.
type CountMismatchError struct {
	Sent     uint32
	Reported uint32
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("receipt count mismatch: sent %d bytes, device reports %d", e.Sent, e.Reported)
}

// TransportError wraps a connection-level failure (write error, link drop).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrDisconnected is the cause carried by a TransportError when the link
// drops while a command is outstanding.
var ErrDisconnected = errors.New("connection lost")
