// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func testImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i * 7)
	}
	return img
}

func runSession(t *testing.T, fb *fakeBootloader, fw FirmwarePackage, opts ...Option) (*Session, error) {
	t.Helper()
	base := []Option{
		WithStartDelay(0),
		WithResponseTimeout(time.Second),
		WithStartTimeout(time.Second),
		WithReceiptTimeout(time.Second),
	}
	s := NewSession(fb.conn, fw, append(base, opts...)...)
	return s, s.Run(context.Background())
}

func TestSessionScenarioA(t *testing.T) {
	// 40-byte image, 20-byte chunks, PRN disabled: exactly 2 image writes,
	// zero receipt waits, one final completion response.
	fw := FirmwarePackage{Image: testImage(40), InitData: []byte{0xAA, 0xBB}}
	fb := newFakeBootloader(len(fw.Image))

	s, err := runSession(t, fb, fw, WithChunkSize(20), WithPRN(0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if s.State() != StateActivated {
		t.Errorf("state = %s, want activated", s.State())
	}
	if fb.imageWrites != 2 {
		t.Errorf("image writes = %d, want 2", fb.imageWrites)
	}
	if len(fb.receipts) != 0 {
		t.Errorf("receipt waits = %d, want 0", len(fb.receipts))
	}
	if s.BytesSent() != 40 {
		t.Errorf("bytes sent = %d, want 40", s.BytesSent())
	}
}

func TestSessionScenarioB(t *testing.T) {
	// 100-byte image, 20-byte chunks, PRN 2: 5 chunks, receipts after
	// chunks 2 and 4 reporting 40 and 80 cumulative bytes, then the final
	// completion response after chunk 5.
	fw := FirmwarePackage{Image: testImage(100), InitData: []byte{0x01}}
	fb := newFakeBootloader(len(fw.Image))

	s, err := runSession(t, fb, fw, WithChunkSize(20), WithPRN(2))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fb.imageWrites != 5 {
		t.Errorf("image writes = %d, want 5", fb.imageWrites)
	}
	wantReceipts := []uint32{40, 80}
	if len(fb.receipts) != len(wantReceipts) {
		t.Fatalf("receipts = %v, want %v", fb.receipts, wantReceipts)
	}
	for i, want := range wantReceipts {
		if fb.receipts[i] != want {
			t.Errorf("receipt %d = %d, want %d", i, fb.receipts[i], want)
		}
	}
	if s.State() != StateActivated {
		t.Errorf("state = %s, want activated", s.State())
	}
}

func TestSessionOpcodeSequence(t *testing.T) {
	fw := FirmwarePackage{Image: testImage(40), InitData: []byte{0x01, 0x02}}
	fb := newFakeBootloader(len(fw.Image))

	if _, err := runSession(t, fb, fw, WithChunkSize(20), WithPRN(4)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := [][]byte{
		{0x01, 0x04},       // START_DFU, application mode
		{0x02, 0x00},       // init begin
		{0x02, 0x01},       // init complete
		{0x08, 0x04, 0x00}, // PRN request, interval 4
		{0x03},             // receive image
		{0x04},             // validate
		{0x05},             // activate
	}
	got := fb.conn.writesTo(CharControlPoint)
	if len(got) != len(want) {
		t.Fatalf("control-point writes = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i].data, want[i]) {
			t.Errorf("write %d = % X, want % X", i, got[i].data, want[i])
		}
	}
}

func TestSessionSizePacket(t *testing.T) {
	fw := FirmwarePackage{Image: testImage(0x0150), InitData: []byte{0x01}}
	fb := newFakeBootloader(len(fw.Image))

	if _, err := runSession(t, fb, fw, WithChunkSize(20), WithPRN(0)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	packets := fb.conn.writesTo(CharPacket)
	if len(packets) == 0 {
		t.Fatal("no packet writes recorded")
	}
	want := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0x50, 0x01, 0x00, 0x00}
	if !bytes.Equal(packets[0].data, want) {
		t.Errorf("size packet = % X, want % X", packets[0].data, want)
	}
}

func TestSessionReceiptMismatchAborts(t *testing.T) {
	fw := FirmwarePackage{Image: testImage(100), InitData: []byte{0x01}}
	fb := newFakeBootloader(len(fw.Image))
	fb.receiptSkew = 1 // device reports one byte more than sent

	s, err := runSession(t, fb, fw, WithChunkSize(20), WithPRN(2))

	var cme *CountMismatchError
	if !errors.As(err, &cme) {
		t.Fatalf("got %v, want CountMismatchError", err)
	}
	if cme.Sent != 40 || cme.Reported != 41 {
		t.Errorf("mismatch sent=%d reported=%d, want 40/41", cme.Sent, cme.Reported)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
	// The engine must stop writing immediately: only the two chunks before
	// the first receipt, nothing after.
	if fb.imageWrites != 2 {
		t.Errorf("image writes after mismatch = %d, want 2", fb.imageWrites)
	}
}

func TestSessionStartRejectedSendsReset(t *testing.T) {
	fw := FirmwarePackage{Image: testImage(40), InitData: []byte{0x01}}
	fb := newFakeBootloader(len(fw.Image))
	fb.reject(OpStartDfu, ResultInvalidState)

	s, err := runSession(t, fb, fw)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want StatusError", err)
	}
	if se.Result != ResultInvalidState {
		t.Errorf("Result = %s, want invalid state", se.Result)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}

	// A failed start must be followed by a best-effort RESET so the
	// bootloader is not left wedged.
	writes := fb.conn.writesTo(CharControlPoint)
	last := writes[len(writes)-1]
	if !bytes.Equal(last.data, ResetRequest()) {
		t.Errorf("last control write = % X, want RESET", last.data)
	}
}

func TestSessionSilentDeviceTimesOut(t *testing.T) {
	fw := FirmwarePackage{Image: testImage(40), InitData: []byte{0x01}}
	fb := newFakeBootloader(len(fw.Image))
	fb.silent = true

	s, err := runSession(t, fb, fw, WithStartTimeout(30*time.Millisecond))

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TimeoutError", err)
	}
	if te.Op != OpStartDfu {
		t.Errorf("Op = %s, want START_DFU", te.Op)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
	// The engine must not have progressed into the init packet.
	for _, w := range fb.conn.writesTo(CharControlPoint) {
		if w.data[0] == byte(OpInitDfuParams) {
			t.Error("engine issued INIT_DFU_PARAMS after a timeout")
		}
	}
}

func TestSessionValidateRejected(t *testing.T) {
	fw := FirmwarePackage{Image: testImage(40), InitData: []byte{0x01}}
	fb := newFakeBootloader(len(fw.Image))
	fb.reject(OpValidate, ResultCrcError)

	s, err := runSession(t, fb, fw, WithPRN(0))

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want StatusError", err)
	}
	if se.Op != OpValidate || se.Result != ResultCrcError {
		t.Errorf("got %s/%s, want VALIDATE/CRC error", se.Op, se.Result)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
}

func TestSessionClosesConnection(t *testing.T) {
	fw := FirmwarePackage{Image: testImage(40), InitData: []byte{0x01}}
	fb := newFakeBootloader(len(fw.Image))

	if _, err := runSession(t, fb, fw, WithPRN(0)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	select {
	case <-fb.conn.Disconnected():
	default:
		t.Error("connection not closed after Run")
	}
}

func TestSessionCancelled(t *testing.T) {
	fw := FirmwarePackage{Image: testImage(40), InitData: []byte{0x01}}
	fb := newFakeBootloader(len(fw.Image))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession(fb.conn, fw, WithStartDelay(0))
	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
}

func TestSessionProgressReporting(t *testing.T) {
	fw := FirmwarePackage{Image: testImage(100), InitData: []byte{0x01}}
	fb := newFakeBootloader(len(fw.Image))

	var snapshots []Progress
	_, err := runSession(t, fb, fw, WithChunkSize(20), WithPRN(0),
		WithProgress(func(p Progress) { snapshots = append(snapshots, p) }))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var streamed int
	var final Progress
	for _, p := range snapshots {
		if p.Phase == PhaseStreaming && p.ChunksSent > 0 {
			streamed++
			final = p
		}
	}
	if streamed != 5 {
		t.Errorf("streaming snapshots = %d, want 5", streamed)
	}
	if final.BytesSent != 100 || final.ChunksSent != 5 || final.TotalChunks != 5 {
		t.Errorf("final streaming snapshot = %+v", final)
	}
	last := snapshots[len(snapshots)-1]
	if last.Phase != PhaseComplete {
		t.Errorf("last phase = %s, want complete", last.Phase)
	}
}
