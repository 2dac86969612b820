// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"context"
	"fmt"
	"time"
)

// FirmwarePackage is the already-parsed update payload: the binary image and
// its companion init packet. The session borrows both for its duration and
// never mutates them.
type FirmwarePackage struct {
	Image    []byte
	InitData []byte
}

// State is a transfer session's position in the protocol sequence. The
// progression is strictly linear; there are no cycles and no resumption.
type State int

// Session states in order. StateActivated and StateFailed are terminal.
const (
	StateIdle State = iota
	StateAppConnected
	StateBootloaderJumpSent
	StateWaitingReboot
	StateBootloaderConnected
	StateDfuStarted
	StateSizeSent
	StateInitSent
	StateImageStreaming
	StateImageComplete
	StateValidated
	StateActivated
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAppConnected:
		return "app connected"
	case StateBootloaderJumpSent:
		return "bootloader jump sent"
	case StateWaitingReboot:
		return "waiting for reboot"
	case StateBootloaderConnected:
		return "bootloader connected"
	case StateDfuStarted:
		return "DFU started"
	case StateSizeSent:
		return "size sent"
	case StateInitSent:
		return "init packet sent"
	case StateImageStreaming:
		return "image streaming"
	case StateImageComplete:
		return "image complete"
	case StateValidated:
		return "validated"
	case StateActivated:
		return "activated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session drives one firmware transfer over an established bootloader-mode
// connection. A Session is created per invocation and is not reusable: after
// Run returns, its state is terminal.
//
// The session owns the connection exclusively and closes it on every exit
// path.
type Session struct {
	conn   Conn
	fw     FirmwarePackage
	cfg    config
	waiter *responseWaiter

	state     State
	bytesSent uint32
	started   time.Time
}

// NewSession creates a transfer session over an open bootloader connection.
func NewSession(conn Conn, fw FirmwarePackage, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Session{
		conn:   conn,
		fw:     fw,
		cfg:    cfg,
		waiter: newResponseWaiter(cfg.log),
		state:  StateBootloaderConnected,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	return s.state
}

// BytesSent returns the cumulative image bytes written so far.
func (s *Session) BytesSent() uint32 {
	return s.bytesSent
}

// Run executes the transfer sequence: start, size, init packet, image
// streaming with receipt flow control, validate, activate. Any step failure
// moves the session to StateFailed and aborts; the transfer cannot be
// resumed, only restarted on a fresh connection.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()

	s.started = time.Now()

	if err := s.conn.Subscribe(CharControlPoint, s.waiter.HandleNotification); err != nil {
		return s.fail("subscribe", &TransportError{Op: "subscribe control point", Err: err})
	}
	// A freshly-rebooted bootloader occasionally replays a notification from
	// before the reconnect.
	s.waiter.drain()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"start DFU", s.startDfu},
		{"send sizes", s.sendSizes},
		{"send init packet", s.sendInitPacket},
		{"stream image", s.streamImage},
		{"validate", s.validate},
		{"activate", s.activate},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return s.fail(step.name, err)
		}
		if err := step.fn(ctx); err != nil {
			return s.fail(step.name, err)
		}
	}

	s.report(PhaseComplete)
	return nil
}

// fail marks the session failed and annotates the error with the offending
// step.
func (s *Session) fail(step string, err error) error {
	s.state = StateFailed
	s.cfg.log.Error("transfer failed", "step", step, "state", s.state.String(), "err", err)
	return fmt.Errorf("%s: %w", step, err)
}

// startDfu writes START_DFU, then pauses for the configured start delay so
// the bootloader finishes its internal setup before the size packet lands.
// Sending the size packet too early manifests as a response timeout on the
// size command.
func (s *Session) startDfu(ctx context.Context) error {
	s.report(PhaseStarting)
	s.cfg.log.Info("starting DFU", "image_bytes", len(s.fw.Image))

	if err := s.conn.Write(CharControlPoint, StartDfuRequest()); err != nil {
		return &TransportError{Op: "write START_DFU", Err: err}
	}
	s.state = StateDfuStarted

	if s.cfg.startDelay > 0 {
		s.cfg.log.Debug("pausing for bootloader setup", "delay", s.cfg.startDelay)
		if err := sleep(ctx, s.cfg.startDelay); err != nil {
			return err
		}
	}
	return nil
}

// sendSizes writes the size packet and awaits the START_DFU response. The
// response covers the bootloader's flash erase, hence the long timeout. On
// rejection a RESET is written best-effort so the bootloader does not stay
// wedged in a half-started state.
func (s *Session) sendSizes(ctx context.Context) error {
	sizes := SizeRequest(0, 0, uint32(len(s.fw.Image)))
	if err := s.conn.Write(CharPacket, sizes); err != nil {
		return &TransportError{Op: "write size packet", Err: err}
	}
	s.state = StateSizeSent

	if _, err := s.waiter.await(ctx, s.conn, OpStartDfu, s.cfg.startTimeout); err != nil {
		if werr := s.conn.Write(CharControlPoint, ResetRequest()); werr != nil {
			s.cfg.log.Debug("reset after failed start not delivered", "err", werr)
		}
		return err
	}
	return nil
}

// sendInitPacket streams the init data between begin/complete markers and
// awaits the INIT_DFU_PARAMS confirmation.
func (s *Session) sendInitPacket(ctx context.Context) error {
	s.report(PhaseInitPacket)
	s.cfg.log.Info("sending init packet", "bytes", len(s.fw.InitData))

	if err := s.conn.Write(CharControlPoint, InitParamsRequest(InitPacketBegin)); err != nil {
		return &TransportError{Op: "write init begin", Err: err}
	}
	for _, chunk := range Chunks(s.fw.InitData, s.cfg.chunkSize) {
		if err := s.conn.Write(CharPacket, chunk); err != nil {
			return &TransportError{Op: "write init data", Err: err}
		}
	}
	if err := s.conn.Write(CharControlPoint, InitParamsRequest(InitPacketComplete)); err != nil {
		return &TransportError{Op: "write init complete", Err: err}
	}

	if _, err := s.waiter.await(ctx, s.conn, OpInitDfuParams, s.cfg.responseTimeout); err != nil {
		return err
	}
	s.state = StateInitSent
	return nil
}

// streamImage configures receipt notifications, announces the image stream
// and writes the firmware in chunks, verifying the device's cumulative byte
// count at every receipt.
func (s *Session) streamImage(ctx context.Context) error {
	if s.cfg.prnInterval > 0 {
		s.cfg.log.Info("configuring receipt notifications", "interval", s.cfg.prnInterval)
		if err := s.conn.Write(CharControlPoint, ReceiptNotifRequest(s.cfg.prnInterval)); err != nil {
			return &TransportError{Op: "write PRN request", Err: err}
		}
	}

	if err := s.conn.Write(CharControlPoint, ReceiveImageRequest()); err != nil {
		return &TransportError{Op: "write RECEIVE_FIRMWARE_IMAGE", Err: err}
	}

	s.state = StateImageStreaming
	s.report(PhaseStreaming)
	s.cfg.log.Info("uploading image", "bytes", len(s.fw.Image), "chunk_size", s.cfg.chunkSize)

	chunks := Chunks(s.fw.Image, s.cfg.chunkSize)
	sinceReceipt := 0
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.conn.Write(CharPacket, chunk); err != nil {
			return &TransportError{Op: "write image chunk", Err: err}
		}
		s.bytesSent += uint32(len(chunk))
		sinceReceipt++

		s.reportStreaming(i+1, len(chunks))

		if s.cfg.prnInterval > 0 && sinceReceipt >= int(s.cfg.prnInterval) {
			reported, err := s.waiter.awaitReceipt(ctx, s.conn, s.cfg.receiptTimeout)
			if err != nil {
				return err
			}
			if reported != s.bytesSent {
				return &CountMismatchError{Sent: s.bytesSent, Reported: reported}
			}
			sinceReceipt = 0
		}

		if s.cfg.packetDelay > 0 && i < len(chunks)-1 {
			if err := sleep(ctx, s.cfg.packetDelay); err != nil {
				return err
			}
		}
	}

	// The final confirmation is a regular response, distinct from the
	// interim receipts.
	if _, err := s.waiter.await(ctx, s.conn, OpReceiveFirmwareImage, s.cfg.responseTimeout); err != nil {
		return err
	}
	s.state = StateImageComplete
	return nil
}

// validate asks the bootloader to CRC-check the received image. A rejection
// here is a whole-image CRC mismatch and is fatal.
func (s *Session) validate(ctx context.Context) error {
	s.report(PhaseValidating)
	s.cfg.log.Info("validating image")

	if _, err := s.waiter.sendAndAwait(ctx, s.conn, CharControlPoint, ValidateRequest(), OpValidate, s.cfg.responseTimeout); err != nil {
		return err
	}
	s.state = StateValidated
	return nil
}

// activate writes ACTIVATE_AND_RESET. The device resets itself rather than
// answering, so a write error or an immediate disconnect counts as success.
func (s *Session) activate(ctx context.Context) error {
	s.report(PhaseActivating)
	s.cfg.log.Info("activating new firmware")

	if err := s.conn.Write(CharControlPoint, ActivateRequest()); err != nil {
		s.cfg.log.Debug("activate write ended with device reset", "err", err)
	}
	s.state = StateActivated
	return nil
}

func (s *Session) report(p Phase) {
	if s.cfg.progress == nil {
		return
	}
	s.cfg.progress(Progress{
		Phase:       p,
		BytesSent:   int(s.bytesSent),
		TotalBytes:  len(s.fw.Image),
		TotalChunks: NumChunks(len(s.fw.Image), s.cfg.chunkSize),
		Elapsed:     time.Since(s.started),
	})
}

func (s *Session) reportStreaming(sent, total int) {
	if s.cfg.progress == nil {
		return
	}
	s.cfg.progress(Progress{
		Phase:       PhaseStreaming,
		BytesSent:   int(s.bytesSent),
		TotalBytes:  len(s.fw.Image),
		ChunksSent:  sent,
		TotalChunks: total,
		Elapsed:     time.Since(s.started),
	})
}

// sleep blocks for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
