// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Updater orchestrates a complete buttonless update: application-mode
// discovery, the jump to bootloader, rediscovery and the firmware transfer.
type Updater struct {
	transport Transport
	cfg       config
	opts      []Option
}

// NewUpdater creates an Updater over the given transport.
func NewUpdater(t Transport, opts ...Option) *Updater {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Updater{transport: t, cfg: cfg, opts: opts}
}

// TargetFilter matches a device by advertised name or address, compared
// case-insensitively for addresses.
func TargetFilter(target string) DeviceFilter {
	return func(adv Advertisement) bool {
		if adv.Name != "" && adv.Name == target {
			return true
		}
		return adv.Address != "" && strings.EqualFold(adv.Address, target)
	}
}

// Update performs the whole flow against the device identified by target
// (advertised name or BLE address). The run is capped by the configured
// update timeout. A transfer that fails at the connection level is retried
// from START_DFU on a fresh connection; protocol-level failures are not
// retried.
func (u *Updater) Update(ctx context.Context, target string, fw FirmwarePackage) error {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.updateTimeout)
	defer cancel()

	u.cfg.log.Info("scanning for target", "target", target)
	app, err := u.transport.Scan(ctx, TargetFilter(target), u.cfg.jumpTimeout)
	if err != nil {
		return fmt.Errorf("find %q: %w", target, err)
	}
	u.cfg.log.Info("found target", "name", app.Name, "address", app.Address)

	u.progress(PhaseJumping)
	if err := u.jump(ctx, app); err != nil {
		return fmt.Errorf("jump to bootloader: %w", err)
	}

	u.cfg.log.Info("waiting for reboot", "delay", u.cfg.rebootDelay)
	if err := sleep(ctx, u.cfg.rebootDelay); err != nil {
		return err
	}

	u.progress(PhaseReconnecting)
	rec := NewReconnector(u.transport, u.opts...)
	boot, err := rec.AwaitBootloader(ctx, app, u.cfg.updateTimeout)
	if err != nil {
		return fmt.Errorf("await bootloader: %w", err)
	}

	return u.transfer(ctx, boot, fw)
}

// jump connects to the application-mode device and commands the mode
// switch.
func (u *Updater) jump(ctx context.Context, app Advertisement) error {
	conn, err := u.transport.Connect(ctx, app.Address)
	if err != nil {
		return &TransportError{Op: "connect application", Err: err}
	}
	return JumpToBootloader(ctx, conn, u.opts...)
}

// transfer runs the firmware session against the bootloader, retrying on
// connection-level failure. Each attempt restarts from START_DFU: the
// legacy protocol has no resumable offset.
func (u *Updater) transfer(ctx context.Context, boot Advertisement, fw FirmwarePackage) error {
	attempts := u.cfg.connectRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		u.cfg.log.Info("DFU connection attempt", "attempt", attempt, "of", attempts)

		conn, err := u.transport.Connect(ctx, boot.Address)
		if err != nil {
			lastErr = &TransportError{Op: "connect bootloader", Err: err}
		} else {
			session := NewSession(conn, fw, u.opts...)
			err = session.Run(ctx)
			if err == nil {
				return nil
			}
			lastErr = err
			if !retryable(err) {
				return err
			}
		}

		if attempt < attempts {
			u.cfg.log.Warn("attempt failed, retrying", "attempt", attempt, "err", lastErr)
			if err := sleep(ctx, u.cfg.retryPause); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// retryable reports whether a session failure is worth a fresh connection.
// Protocol rejections and count mismatches reproduce deterministically, so
// only link-level trouble is retried.
func retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var to *TimeoutError
	return errors.As(err, &to)
}

func (u *Updater) progress(p Phase) {
	if u.cfg.progress != nil {
		u.cfg.progress(Progress{Phase: p})
	}
}
