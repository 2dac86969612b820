// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"context"
	"strings"
	"time"
)

// Characteristic selects one of the DFU service characteristics on a
// connection. The transport maps it to the concrete UUID.
type Characteristic uint8

// DFU service characteristics used by the engine.
const (
	CharControlPoint Characteristic = iota
	CharPacket
)

// String returns the characteristic name.
func (c Characteristic) String() string {
	switch c {
	case CharControlPoint:
		return "control point"
	case CharPacket:
		return "packet"
	default:
		return "unknown"
	}
}

// Advertisement describes a device seen during a scan.
type Advertisement struct {
	// Address is the device's BLE address, colon-separated uppercase hex on
	// platforms that expose it.
	Address string

	// Name is the advertised local name, possibly empty.
	Name string

	// ServiceUUIDs lists advertised service UUIDs the transport recognized.
	ServiceUUIDs []string
}

// HasService reports whether the advertisement carries the given service
// UUID, compared case-insensitively.
func (a Advertisement) HasService(uuid string) bool {
	for _, u := range a.ServiceUUIDs {
		if strings.EqualFold(u, uuid) {
			return true
		}
	}
	return false
}

// DeviceFilter decides whether a scanned advertisement is the wanted target.
type DeviceFilter func(Advertisement) bool

// Transport abstracts the BLE stack: device discovery and connection
// establishment. Implementations live outside the core (a local adapter or
// a remote bridge); the engine only consumes this interface.
type Transport interface {
	// Scan discovers devices until the filter accepts one or the timeout
	// elapses. Returns ErrDeviceNotFound (possibly wrapped) on timeout.
	Scan(ctx context.Context, filter DeviceFilter, timeout time.Duration) (Advertisement, error)

	// Connect opens a connection to the device at the given address and
	// discovers the DFU service characteristics.
	Connect(ctx context.Context, address string) (Conn, error)
}

// Conn is a single live connection to a device. Exactly one Conn is live per
// transfer session; the engine owns it exclusively and closes it on every
// exit path.
type Conn interface {
	// Write sends bytes to the given characteristic.
	Write(c Characteristic, p []byte) error

	// Subscribe registers a callback for control-point notifications. The
	// callback runs on the transport's delivery goroutine and must not
	// block.
	Subscribe(c Characteristic, fn func([]byte)) error

	// Disconnected returns a channel that is closed when the link drops,
	// whether peer-initiated or local.
	Disconnected() <-chan struct{}

	// Close tears the connection down. Closing an already-dropped
	// connection is a no-op.
	Close() error
}
