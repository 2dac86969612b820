// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 oltaco

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oltaco/nrf-dfu/pkg/dfu"
	"tinygo.org/x/bluetooth"
)

// bleTransport implements dfu.Transport on the machine's Bluetooth adapter.
type bleTransport struct {
	adapter *bluetooth.Adapter
	log     dfu.Logger

	serviceUUID      bluetooth.UUID
	controlPointUUID bluetooth.UUID
	packetUUID       bluetooth.UUID

	mu sync.Mutex
	// cache maps address strings from scan results back to adapter
	// addresses, preserving the random-address bit that a parsed MAC loses.
	cache map[string]bluetooth.Address
	conn  *bleConn
}

func newBLETransport(log dfu.Logger) (*bleTransport, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("could not enable the BLE stack: %w", err)
	}

	t := &bleTransport{
		adapter: adapter,
		log:     log,
		cache:   make(map[string]bluetooth.Address),
	}

	var err error
	if t.serviceUUID, err = bluetooth.ParseUUID(dfu.ServiceUUID); err != nil {
		return nil, err
	}
	if t.controlPointUUID, err = bluetooth.ParseUUID(dfu.ControlPointUUID); err != nil {
		return nil, err
	}
	if t.packetUUID, err = bluetooth.ParseUUID(dfu.PacketUUID); err != nil {
		return nil, err
	}

	// The adapter reports connection state changes globally; route drops to
	// whichever device connection is current.
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn != nil && conn.address == device.Address.String() {
			log.Debug("adapter reports disconnect", "address", conn.address)
			conn.drop()
		}
	})

	return t, nil
}

// Scan reports the first advertisement accepted by the filter.
func (t *bleTransport) Scan(ctx context.Context, filter dfu.DeviceFilter, timeout time.Duration) (dfu.Advertisement, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-scanCtx.Done()
		t.adapter.StopScan()
	}()

	var (
		mu      sync.Mutex
		found   dfu.Advertisement
		matched bool
	)
	err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		adv := dfu.Advertisement{
			Address: result.Address.String(),
			Name:    result.LocalName(),
		}
		if result.AdvertisementPayload.HasServiceUUID(t.serviceUUID) {
			adv.ServiceUUIDs = []string{dfu.ServiceUUID}
		}

		t.mu.Lock()
		t.cache[adv.Address] = result.Address
		t.mu.Unlock()

		if !filter(adv) {
			return
		}
		mu.Lock()
		if !matched {
			found, matched = adv, true
		}
		mu.Unlock()
		adapter.StopScan()
	})
	if err != nil {
		return dfu.Advertisement{}, fmt.Errorf("scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !matched {
		if err := ctx.Err(); err != nil {
			return dfu.Advertisement{}, err
		}
		return dfu.Advertisement{}, dfu.ErrDeviceNotFound
	}
	return found, nil
}

// Connect connects to the device and discovers the DFU characteristics.
func (t *bleTransport) Connect(ctx context.Context, address string) (dfu.Conn, error) {
	addr, err := t.resolve(address)
	if err != nil {
		return nil, err
	}

	device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{t.serviceUUID})
	if err != nil || len(services) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("device %s does not expose the DFU service: %v", address, err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{t.controlPointUUID, t.packetUUID})
	if err != nil || len(chars) < 2 {
		device.Disconnect()
		return nil, fmt.Errorf("discover DFU characteristics on %s: %v", address, err)
	}

	conn := &bleConn{
		device:       device,
		address:      addr.String(),
		control:      chars[0],
		packet:       chars[1],
		disconnected: make(chan struct{}),
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return conn, nil
}

// resolve maps an address string to an adapter address, preferring the form
// seen during scanning.
func (t *bleTransport) resolve(address string) (bluetooth.Address, error) {
	t.mu.Lock()
	cached, ok := t.cache[address]
	t.mu.Unlock()
	if ok {
		return cached, nil
	}
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid device address %q: %w", address, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

// bleConn is a dfu.Conn over a connected adapter device.
type bleConn struct {
	device  bluetooth.Device
	address string
	control bluetooth.DeviceCharacteristic
	packet  bluetooth.DeviceCharacteristic

	disconnected chan struct{}
	dropOnce     sync.Once
}

func (c *bleConn) characteristic(char dfu.Characteristic) *bluetooth.DeviceCharacteristic {
	if char == dfu.CharPacket {
		return &c.packet
	}
	return &c.control
}

func (c *bleConn) Write(char dfu.Characteristic, p []byte) error {
	_, err := c.characteristic(char).WriteWithoutResponse(p)
	return err
}

func (c *bleConn) Subscribe(char dfu.Characteristic, fn func([]byte)) error {
	return c.characteristic(char).EnableNotifications(fn)
}

func (c *bleConn) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *bleConn) Close() error {
	c.drop()
	return c.device.Disconnect()
}

func (c *bleConn) drop() {
	c.dropOnce.Do(func() { close(c.disconnected) })
}
