// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oltaco/nrf-dfu/pkg/dfu"
)

const defaultReplyTimeout = 10 * time.Second

// Transport drives a remote BLE bridge over a byte-stream Connection and
// exposes it as a dfu.Transport. The bridge holds at most one device
// connection at a time, which matches the DFU flow: the application-mode and
// bootloader-mode connections are strictly sequential.
type Transport struct {
	conn Connection
	log  dfu.Logger

	writeMu sync.Mutex // serializes frame writes
	reqMu   sync.Mutex // one outstanding request/reply exchange

	mu          sync.Mutex
	pending     chan *Message
	pendingType uint8
	scanCh      chan *Message
	device      *deviceConn

	linkDown chan struct{}
	downOnce sync.Once
	readErr  error

	timeout time.Duration
}

// NewTransport wraps an open bridge connection and starts its frame reader.
// A nil log disables diagnostics.
func NewTransport(conn Connection, log dfu.Logger) *Transport {
	if log == nil {
		log = nopLogger{}
	}
	t := &Transport{
		conn:     conn,
		log:      log,
		linkDown: make(chan struct{}),
		timeout:  defaultReplyTimeout,
	}
	go t.readLoop()
	return t
}

// Close tears down the bridge link. Any in-flight waits fail with the link
// error.
func (t *Transport) Close() error {
	t.fail(fmt.Errorf("transport closed"))
	return t.conn.Close()
}

func (t *Transport) readLoop() {
	dec := NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			t.fail(err)
			return
		}
		for _, b := range buf[:n] {
			msg, derr := dec.DecodeByte(b)
			if derr != nil {
				t.log.Warn("dropping bridge frame", "err", derr)
				continue
			}
			if msg != nil {
				t.dispatch(msg)
			}
		}
	}
}

// fail marks the link dead and propagates the drop to the device connection.
func (t *Transport) fail(err error) {
	t.downOnce.Do(func() {
		t.readErr = err
		close(t.linkDown)
	})
	t.mu.Lock()
	dev := t.device
	t.mu.Unlock()
	if dev != nil {
		dev.drop()
	}
}

func (t *Transport) dispatch(msg *Message) {
	switch msg.Type {
	case MsgScanResult:
		t.mu.Lock()
		ch := t.scanCh
		t.mu.Unlock()
		if ch == nil {
			t.log.Debug("scan result with no scan active")
			return
		}
		select {
		case ch <- msg:
		default:
			t.log.Warn("scan result backlog full, dropping advertisement")
		}

	case MsgNotification:
		t.mu.Lock()
		dev := t.device
		t.mu.Unlock()
		if dev == nil {
			t.log.Debug("notification with no device connected")
			return
		}
		char, _ := msg.Uint(fieldChar)
		data, _ := msg.Bytes(fieldData)
		dev.deliver(dfu.Characteristic(char), data)

	case MsgDisconnected:
		t.log.Info("bridge reports device disconnect")
		t.mu.Lock()
		dev := t.device
		t.mu.Unlock()
		if dev != nil {
			dev.drop()
		}

	default:
		t.mu.Lock()
		ch, want := t.pending, t.pendingType
		if ch != nil && (msg.Type == want || msg.Type == MsgError) {
			t.pending = nil
		} else {
			ch = nil
		}
		t.mu.Unlock()
		if ch == nil {
			t.log.Warn("unexpected bridge message", "type", msg.Type)
			return
		}
		ch <- msg
	}
}

// send frames and writes one message.
func (t *Transport) send(msg *Message) error {
	frame, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(frame); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

// request sends a message and blocks for the matching reply type. The bridge
// protocol allows a single outstanding request.
func (t *Transport) request(ctx context.Context, msg *Message, want uint8) (*Message, error) {
	t.reqMu.Lock()
	defer t.reqMu.Unlock()

	ch := make(chan *Message, 1)
	t.mu.Lock()
	t.pending, t.pendingType = ch, want
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.pending = nil
		t.mu.Unlock()
	}()

	if err := t.send(msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		if reply.Type == MsgError {
			return nil, errorFromMessage(reply)
		}
		return reply, nil
	case <-t.linkDown:
		return nil, fmt.Errorf("bridge link lost: %w", t.readErr)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("no bridge reply to message 0x%02X within %s", msg.Type, t.timeout)
	}
}

// Scan asks the bridge to report advertisements and returns the first one
// accepted by the filter.
func (t *Transport) Scan(ctx context.Context, filter dfu.DeviceFilter, timeout time.Duration) (dfu.Advertisement, error) {
	ch := make(chan *Message, 16)
	t.mu.Lock()
	if t.scanCh != nil {
		t.mu.Unlock()
		return dfu.Advertisement{}, fmt.Errorf("scan already in progress")
	}
	t.scanCh = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.scanCh = nil
		t.mu.Unlock()
		if err := t.send(NewScanStop()); err != nil {
			t.log.Debug("scan stop not delivered", "err", err)
		}
	}()

	if err := t.send(NewScanStart(uint64(timeout / time.Millisecond))); err != nil {
		return dfu.Advertisement{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case msg := <-ch:
			adv := advertisementFrom(msg)
			t.log.Debug("advertisement", "address", adv.Address, "name", adv.Name)
			if filter(adv) {
				return adv, nil
			}
		case <-t.linkDown:
			return dfu.Advertisement{}, fmt.Errorf("bridge link lost: %w", t.readErr)
		case <-ctx.Done():
			return dfu.Advertisement{}, ctx.Err()
		case <-timer.C:
			return dfu.Advertisement{}, dfu.ErrDeviceNotFound
		}
	}
}

// Connect asks the bridge to connect to the given device and discover the
// DFU characteristics.
func (t *Transport) Connect(ctx context.Context, address string) (dfu.Conn, error) {
	if _, err := t.request(ctx, NewConnect(address), MsgConnected); err != nil {
		return nil, fmt.Errorf("bridge connect %s: %w", address, err)
	}
	dev := &deviceConn{t: t, disconnected: make(chan struct{})}
	t.mu.Lock()
	t.device = dev
	t.mu.Unlock()
	return dev, nil
}

func advertisementFrom(msg *Message) dfu.Advertisement {
	addr, _ := msg.String(fieldAddress)
	name, _ := msg.String(fieldName)
	return dfu.Advertisement{
		Address:      addr,
		Name:         name,
		ServiceUUIDs: msg.Strings(fieldServices),
	}
}

func errorFromMessage(msg *Message) error {
	code, _ := msg.Uint(fieldCode)
	text, _ := msg.String(fieldText)
	return fmt.Errorf("bridge error %d: %s", code, text)
}

// deviceConn is the dfu.Conn for the device currently held by the bridge.
type deviceConn struct {
	t *Transport

	mu       sync.Mutex
	handlers map[dfu.Characteristic]func([]byte)

	disconnected chan struct{}
	dropOnce     sync.Once
}

func (c *deviceConn) Write(char dfu.Characteristic, p []byte) error {
	_, err := c.t.request(context.Background(), NewWrite(uint8(char), p), MsgWriteAck)
	return err
}

func (c *deviceConn) Subscribe(char dfu.Characteristic, fn func([]byte)) error {
	if _, err := c.t.request(context.Background(), NewSubscribe(uint8(char)), MsgSubscribeAck); err != nil {
		return err
	}
	c.mu.Lock()
	if c.handlers == nil {
		c.handlers = make(map[dfu.Characteristic]func([]byte))
	}
	c.handlers[char] = fn
	c.mu.Unlock()
	return nil
}

func (c *deviceConn) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Close releases the bridge's device connection. The bridge link itself
// stays up for subsequent scans and connects.
func (c *deviceConn) Close() error {
	c.drop()
	if err := c.t.send(NewDisconnect()); err != nil {
		c.t.log.Debug("disconnect not delivered", "err", err)
	}
	c.t.mu.Lock()
	if c.t.device == c {
		c.t.device = nil
	}
	c.t.mu.Unlock()
	return nil
}

func (c *deviceConn) drop() {
	c.dropOnce.Do(func() { close(c.disconnected) })
}

func (c *deviceConn) deliver(char dfu.Characteristic, data []byte) {
	c.mu.Lock()
	fn := c.handlers[char]
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// nopLogger satisfies dfu.Logger with no output.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
