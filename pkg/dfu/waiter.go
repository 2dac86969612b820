// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"context"
	"fmt"
	"time"
)

// responseWaiter bridges asynchronous control-point notifications into the
// blocking waits of the transfer sequence. Notifications arrive on the
// transport's delivery goroutine; waits happen on the session goroutine.
//
// Both channels have capacity 1: the protocol allows at most one outstanding
// command, so anything beyond the buffered element is stray and is discarded
// with a warning rather than requeued.
type responseWaiter struct {
	log       Logger
	responses chan Response
	receipts  chan uint32
}

func newResponseWaiter(log Logger) *responseWaiter {
	return &responseWaiter{
		log:       log,
		responses: make(chan Response, 1),
		receipts:  make(chan uint32, 1),
	}
}

// HandleNotification is the Subscribe callback. It classifies the frame and
// hands it to whichever wait is pending. Must not block.
func (w *responseWaiter) HandleNotification(data []byte) {
	n, err := ParseNotification(data)
	if err != nil {
		w.log.Warn("ignoring malformed notification", "err", err, "len", len(data))
		return
	}

	switch n.Op {
	case OpResponseCode:
		w.log.Debug("rx response", "op", n.Response.Request.String(), "result", n.Response.Result.String())
		select {
		case w.responses <- n.Response:
		default:
			w.log.Warn("discarding stray response", "op", n.Response.Request.String())
		}
	case OpPacketReceiptNotif:
		w.log.Debug("rx receipt", "bytes", n.BytesReceived)
		select {
		case w.receipts <- n.BytesReceived:
		default:
			w.log.Warn("discarding stray receipt", "bytes", n.BytesReceived)
		}
	}
}

// drain discards any buffered notifications left over from a previous
// command or a freshly-subscribed connection.
func (w *responseWaiter) drain() {
	for {
		select {
		case r := <-w.responses:
			w.log.Debug("drained stale response", "op", r.Request.String())
		case n := <-w.receipts:
			w.log.Debug("drained stale receipt", "bytes", n)
		default:
			return
		}
	}
}

// sendAndAwait writes a command to the given characteristic and blocks until
// the matching response arrives, the link drops, or the timeout elapses.
// Exactly one write, exactly one resolution.
func (w *responseWaiter) sendAndAwait(ctx context.Context, conn Conn, c Characteristic, req []byte, expect Opcode, timeout time.Duration) (Response, error) {
	w.drain()
	if err := conn.Write(c, req); err != nil {
		return Response{}, &TransportError{Op: fmt.Sprintf("write %s", expect), Err: err}
	}
	return w.await(ctx, conn, expect, timeout)
}

// await blocks for the response to an already-written command.
func (w *responseWaiter) await(ctx context.Context, conn Conn, expect Opcode, timeout time.Duration) (Response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-w.responses:
		if resp.Request != expect {
			return resp, &UnexpectedResponseError{Expected: expect, Got: resp.Request}
		}
		if resp.Result != ResultSuccess {
			return resp, &StatusError{Op: expect, Result: resp.Result}
		}
		return resp, nil
	case <-conn.Disconnected():
		return Response{}, &TransportError{Op: fmt.Sprintf("await %s", expect), Err: ErrDisconnected}
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-timer.C:
		return Response{}, &TimeoutError{Op: expect, Wait: timeout}
	}
}

// awaitReceipt blocks for a packet receipt notification and returns the
// device's cumulative byte count.
func (w *responseWaiter) awaitReceipt(ctx context.Context, conn Conn, timeout time.Duration) (uint32, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case n := <-w.receipts:
		return n, nil
	case <-conn.Disconnected():
		return 0, &TransportError{Op: "await receipt", Err: ErrDisconnected}
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return 0, &TimeoutError{Op: OpPacketReceiptNotif, Wait: timeout}
	}
}
