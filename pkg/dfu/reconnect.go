// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BootloaderFilter builds a DeviceFilter matching a device re-advertising in
// bootloader mode after a buttonless jump.
//
// The device's identity is not guaranteed stable across the mode switch, so
// matching is alias-based rather than exact-string-only. Accepted:
//
//   - the original address or name, unchanged
//   - the original address with the last byte incremented (the nRF5
//     bootloader convention of advertising on MAC+1)
//   - any name in the alias set, either standalone ("DfuTarg") or appended
//     to the original name ("MyDeviceDfuTarg")
//   - presence of the legacy DFU service UUID in the advertisement
func BootloaderFilter(original Advertisement, aliases []string) DeviceFilter {
	macHint := IncrementAddress(original.Address)

	return func(adv Advertisement) bool {
		if original.Address != "" && strings.EqualFold(adv.Address, original.Address) {
			return true
		}
		if macHint != "" && strings.EqualFold(adv.Address, macHint) {
			return true
		}
		if adv.Name != "" {
			if original.Name != "" && adv.Name == original.Name {
				return true
			}
			for _, alias := range aliases {
				if adv.Name == alias {
					return true
				}
				if original.Name != "" && adv.Name == original.Name+alias {
					return true
				}
			}
		}
		return adv.HasService(ServiceUUID)
	}
}

// IncrementAddress returns the colon-separated BLE address with its last
// byte incremented modulo 256, or "" if addr is not a full 6-byte address.
func IncrementAddress(addr string) string {
	if len(addr) != 17 || !strings.Contains(addr, ":") {
		return ""
	}
	last, err := strconv.ParseUint(addr[15:], 16, 8)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s%02X", addr[:15], (last+1)&0xFF)
}

// Reconnector rediscovers a device under its bootloader identity after the
// buttonless jump.
type Reconnector struct {
	transport Transport
	cfg       config
}

// NewReconnector creates a Reconnector over the given transport.
func NewReconnector(t Transport, opts ...Option) *Reconnector {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reconnector{transport: t, cfg: cfg}
}

// AwaitBootloader scans until the rebooted device is seen or the timeout
// budget is exhausted, retrying individual scan rounds within the deadline.
// Returns ErrDeviceNotFound (wrapped) on exhaustion.
func (r *Reconnector) AwaitBootloader(ctx context.Context, original Advertisement, timeout time.Duration) (Advertisement, error) {
	filter := BootloaderFilter(original, r.cfg.aliases)
	deadline := time.Now().Add(timeout)

	for attempt := 1; ; attempt++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Advertisement{}, fmt.Errorf("bootloader for %q: %w", original.Name, ErrDeviceNotFound)
		}

		round := r.cfg.scanInterval
		if round > remaining {
			round = remaining
		}

		r.cfg.log.Debug("scanning for bootloader", "attempt", attempt, "window", round)
		adv, err := r.transport.Scan(ctx, filter, round)
		if err == nil {
			r.cfg.log.Info("bootloader found", "name", adv.Name, "address", adv.Address)
			return adv, nil
		}
		if ctx.Err() != nil {
			return Advertisement{}, ctx.Err()
		}
	}
}
