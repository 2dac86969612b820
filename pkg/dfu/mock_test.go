// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"
)

// recordedWrite is one characteristic write captured by the mock connection.
type recordedWrite struct {
	char Characteristic
	data []byte
}

// mockConn is an in-memory Conn. Notifications are delivered synchronously
// from Write via the onWrite hook, which is how a scripted device answers.
type mockConn struct {
	mu           sync.Mutex
	writes       []recordedWrite
	notify       func([]byte)
	disconnected chan struct{}
	closeOnce    sync.Once

	onWrite  func(c Characteristic, p []byte)
	writeErr error
	subErr   error
}

func newMockConn() *mockConn {
	return &mockConn{disconnected: make(chan struct{})}
}

func (m *mockConn) Write(c Characteristic, p []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.mu.Lock()
	cp := append([]byte(nil), p...)
	m.writes = append(m.writes, recordedWrite{char: c, data: cp})
	m.mu.Unlock()
	if m.onWrite != nil {
		m.onWrite(c, cp)
	}
	return nil
}

func (m *mockConn) Subscribe(c Characteristic, fn func([]byte)) error {
	if m.subErr != nil {
		return m.subErr
	}
	m.notify = fn
	return nil
}

func (m *mockConn) Disconnected() <-chan struct{} {
	return m.disconnected
}

func (m *mockConn) Close() error {
	m.dropLink()
	return nil
}

func (m *mockConn) dropLink() {
	m.closeOnce.Do(func() { close(m.disconnected) })
}

// sendNotification delivers a raw control-point notification.
func (m *mockConn) sendNotification(data []byte) {
	if m.notify != nil {
		m.notify(data)
	}
}

// sendResponse delivers a response frame echoing the given opcode.
func (m *mockConn) sendResponse(op Opcode, result Result) {
	m.sendNotification([]byte{byte(OpResponseCode), byte(op), byte(result)})
}

// sendReceipt delivers a packet receipt notification.
func (m *mockConn) sendReceipt(count uint32) {
	frame := make([]byte, 5)
	frame[0] = byte(OpPacketReceiptNotif)
	binary.LittleEndian.PutUint32(frame[1:], count)
	m.sendNotification(frame)
}

// numWrites returns how many writes hit the given characteristic.
func (m *mockConn) numWrites(c Characteristic) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.writes {
		if w.char == c {
			n++
		}
	}
	return n
}

func (m *mockConn) writesTo(c Characteristic) []recordedWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedWrite
	for _, w := range m.writes {
		if w.char == c {
			out = append(out, w)
		}
	}
	return out
}

// fakeBootloader scripts a legacy-DFU bootloader behind a mockConn: it
// answers control-point commands with canned responses and emits receipt
// notifications while the image streams in. Responses are delivered
// synchronously from the write that triggers them, after the device state
// has been updated.
type fakeBootloader struct {
	conn *mockConn

	mu           sync.Mutex
	prn          uint16
	received     uint32
	sinceReceipt int
	started      bool
	sizeSeen     bool
	streaming    bool
	imageBytes   int
	imageWrites  int
	receipts     []uint32

	// receiptSkew is added to every reported receipt count, to provoke a
	// mismatch.
	receiptSkew uint32
	// rejectOp makes the device answer the given opcode with rejectResult.
	rejectOp     Opcode
	rejectResult Result
	// silent suppresses all responses (to provoke timeouts).
	silent bool
}

// newFakeBootloader scripts a device expecting an image of the given size;
// the final RECEIVE_FIRMWARE_IMAGE response is delivered once that many
// image bytes have arrived.
func newFakeBootloader(imageBytes int) *fakeBootloader {
	fb := &fakeBootloader{conn: newMockConn(), imageBytes: imageBytes}
	fb.conn.onWrite = fb.handleWrite
	return fb
}

func (fb *fakeBootloader) reject(op Opcode, result Result) {
	fb.rejectOp = op
	fb.rejectResult = result
}

func (fb *fakeBootloader) handleWrite(c Characteristic, p []byte) {
	var actions []func()
	fb.mu.Lock()
	if c == CharControlPoint {
		actions = fb.handleControl(p)
	} else {
		actions = fb.handlePacket(p)
	}
	fb.mu.Unlock()
	for _, a := range actions {
		a()
	}
}

// handleControl mutates device state under lock and returns the
// notifications to deliver after unlocking.
func (fb *fakeBootloader) handleControl(p []byte) []func() {
	if len(p) == 0 {
		return nil
	}
	switch Opcode(p[0]) {
	case OpStartDfu:
		fb.started = true
	case OpInitDfuParams:
		if len(p) > 1 && p[1] == InitPacketComplete {
			return []func(){fb.respondFn(OpInitDfuParams)}
		}
	case OpPacketReceiptNotifReq:
		if len(p) >= 3 {
			fb.prn = binary.LittleEndian.Uint16(p[1:3])
		}
	case OpReceiveFirmwareImage:
		fb.streaming = true
		fb.sinceReceipt = 0
	case OpValidate:
		return []func(){fb.respondFn(OpValidate)}
	case OpActivateAndReset:
		return []func(){fb.conn.dropLink}
	}
	return nil
}

func (fb *fakeBootloader) handlePacket(p []byte) []func() {
	var actions []func()
	switch {
	case fb.started && !fb.sizeSeen:
		// First packet write after START_DFU is the size packet.
		fb.sizeSeen = true
		actions = append(actions, fb.respondFn(OpStartDfu))
	case fb.streaming:
		fb.imageWrites++
		fb.received += uint32(len(p))
		fb.sinceReceipt++
		if fb.prn > 0 && fb.sinceReceipt >= int(fb.prn) {
			fb.sinceReceipt = 0
			count := fb.received + fb.receiptSkew
			fb.receipts = append(fb.receipts, count)
			if !fb.silent {
				actions = append(actions, func() { fb.conn.sendReceipt(count) })
			}
		}
		if int(fb.received) >= fb.imageBytes {
			fb.streaming = false
			actions = append(actions, fb.respondFn(OpReceiveFirmwareImage))
		}
	}
	return actions
}

// respondFn returns a delivery closure for the response to op, honoring the
// scripted rejection and silence settings.
func (fb *fakeBootloader) respondFn(op Opcode) func() {
	if fb.silent {
		return func() {}
	}
	result := ResultSuccess
	if fb.rejectOp != 0 && op == fb.rejectOp {
		result = fb.rejectResult
	}
	return func() { fb.conn.sendResponse(op, result) }
}

// mockTransport hands out scripted advertisements and connections.
type mockTransport struct {
	mu sync.Mutex

	// devices maps address -> advertisement currently "advertising".
	devices map[string]Advertisement
	// conns maps address -> connection to hand out on Connect.
	conns map[string]Conn
	// scansBeforeVisible delays a device's appearance by N scan rounds.
	scansBeforeVisible map[string]int
	scanRounds         int
	connects           int
	connectErr         error
	// onConnect, when set, overrides the conns map entirely.
	onConnect func(address string) (Conn, error)
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		devices:            make(map[string]Advertisement),
		conns:              make(map[string]Conn),
		scansBeforeVisible: make(map[string]int),
	}
}

func (t *mockTransport) addDevice(adv Advertisement, conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices[adv.Address] = adv
	t.conns[adv.Address] = conn
}

func (t *mockTransport) removeDevice(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.devices, address)
	delete(t.conns, address)
}

func (t *mockTransport) Scan(ctx context.Context, filter DeviceFilter, timeout time.Duration) (Advertisement, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scanRounds++
	for addr, adv := range t.devices {
		if wait, ok := t.scansBeforeVisible[addr]; ok && t.scanRounds <= wait {
			continue
		}
		if filter(adv) {
			return adv, nil
		}
	}
	return Advertisement{}, ErrDeviceNotFound
}

func (t *mockTransport) Connect(ctx context.Context, address string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if t.connectErr != nil {
		return nil, t.connectErr
	}
	if t.onConnect != nil {
		return t.onConnect(address)
	}
	conn, ok := t.conns[address]
	if !ok {
		return nil, fmt.Errorf("no such device: %s", address)
	}
	return conn, nil
}

// testLogger collects log lines for assertions.
type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) logf(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+": "+msg)
}

func (l *testLogger) Debug(msg string, _ ...interface{}) { l.logf("debug", msg) }
func (l *testLogger) Info(msg string, _ ...interface{})  { l.logf("info", msg) }
func (l *testLogger) Warn(msg string, _ ...interface{})  { l.logf("warn", msg) }
func (l *testLogger) Error(msg string, _ ...interface{}) { l.logf("error", msg) }

func (l *testLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
