// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"context"
	"time"
)

// JumpToBootloader commands an application-mode device to reboot into its
// bootloader.
//
// Firmware variants differ in how they acknowledge the jump: some answer
// with a confirming response before resetting, others drop the link
// immediately without replying. Both count as success. Only the absence of
// either within the timeout is a failure.
//
// The connection is unusable afterwards regardless of outcome; the caller
// must rediscover the device under its bootloader identity.
func JumpToBootloader(ctx context.Context, conn Conn, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	defer conn.Close()

	waiter := newResponseWaiter(cfg.log)
	if err := conn.Subscribe(CharControlPoint, waiter.HandleNotification); err != nil {
		return &TransportError{Op: "subscribe control point", Err: err}
	}
	waiter.drain()

	cfg.log.Info("sending buttonless jump command")
	if err := conn.Write(CharControlPoint, EnterBootloaderRequest()); err != nil {
		// The device may reset before the write completes; the ensuing
		// disconnect (or nothing at all on some stacks) is still a valid
		// outcome, so only note the error here.
		cfg.log.Debug("jump write ended early", "err", err)
	}

	timer := time.NewTimer(cfg.jumpTimeout)
	defer timer.Stop()

	select {
	case resp := <-waiter.responses:
		if resp.Request != OpEnterBootloader {
			return &UnexpectedResponseError{Expected: OpEnterBootloader, Got: resp.Request}
		}
		if resp.Result != ResultSuccess {
			return &StatusError{Op: OpEnterBootloader, Result: resp.Result}
		}
		cfg.log.Info("jump confirmed by response")
		return nil
	case <-conn.Disconnected():
		cfg.log.Info("jump confirmed by disconnect")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &TimeoutError{Op: OpEnterBootloader, Wait: cfg.jumpTimeout}
	}
}
