// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import "time"

// config holds the tunables for a session or updater.
type config struct {
	// prnInterval is the packet receipt notification interval in chunks.
	// 0 disables receipts entirely: no acknowledgement until the final
	// RECEIVE_FIRMWARE_IMAGE response.
	prnInterval uint16

	// startDelay is the pause between START_DFU and the size packet. Not
	// protocol-mandated: it compensates for bootloaders that have not
	// finished internal setup when the size packet arrives. The single most
	// failure-prone constant in the whole protocol; keep it tunable.
	startDelay time.Duration

	// packetDelay is inserted between individual chunk writes. Some
	// bootloaders drop frames sent back-to-back without spacing.
	packetDelay time.Duration

	chunkSize int

	responseTimeout time.Duration
	startTimeout    time.Duration
	receiptTimeout  time.Duration
	jumpTimeout     time.Duration

	rebootDelay    time.Duration
	scanInterval   time.Duration
	connectRetries int
	retryPause     time.Duration
	updateTimeout  time.Duration

	aliases []string

	log      Logger
	progress ProgressCallback
}

func defaultConfig() config {
	return config{
		prnInterval:     DefaultPRNInterval,
		startDelay:      DefaultStartDelay,
		chunkSize:       DefaultChunkSize,
		responseTimeout: DefaultResponseTimeout,
		startTimeout:    DefaultStartTimeout,
		receiptTimeout:  DefaultReceiptTimeout,
		jumpTimeout:     DefaultJumpTimeout,
		rebootDelay:     DefaultRebootDelay,
		scanInterval:    DefaultScanInterval,
		connectRetries:  3,
		retryPause:      DefaultRetryPause,
		updateTimeout:   DefaultUpdateTimeout,
		aliases:         DefaultBootloaderAliases,
		log:             nopLogger{},
	}
}

// Option configures a Session or Updater.
type Option func(*config)

// WithPRN sets the packet receipt notification interval in chunks.
// 0 disables receipt notifications.
func WithPRN(interval uint16) Option {
	return func(c *config) {
		c.prnInterval = interval
	}
}

// WithStartDelay sets the pause between START_DFU and the size packet. If a
// transfer times out on the size command, raising this is the first knob to
// try.
func WithStartDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.startDelay = d
		}
	}
}

// WithPacketDelay inserts a spacing delay between chunk writes.
func WithPacketDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.packetDelay = d
		}
	}
}

// WithChunkSize sets the firmware frame size. Derive it from the negotiated
// link MTU minus the 3-byte ATT write header.
func WithChunkSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithResponseTimeout sets the wait for ordinary command responses.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.responseTimeout = d
		}
	}
}

// WithStartTimeout sets the wait for the START_DFU response, which covers
// the bootloader's flash erase.
func WithStartTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.startTimeout = d
		}
	}
}

// WithReceiptTimeout sets the wait for a packet receipt notification.
func WithReceiptTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.receiptTimeout = d
		}
	}
}

// WithJumpTimeout sets the wait for the buttonless jump to be confirmed,
// either by a response or by the device dropping the link.
func WithJumpTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.jumpTimeout = d
		}
	}
}

// WithRebootDelay sets the pause between the jump and the first bootloader
// scan attempt.
func WithRebootDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.rebootDelay = d
		}
	}
}

// WithScanInterval sets the length of one bootloader scan round. The full
// rediscovery budget is spent in rounds of this size.
func WithScanInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.scanInterval = d
		}
	}
}

// WithConnectRetries sets how many times the bootloader session is retried
// on connection-level failure before giving up. The transfer itself is never
// resumed mid-image; each retry restarts from START_DFU.
func WithConnectRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.connectRetries = n
		}
	}
}

// WithRetryPause sets the pause between transfer retry attempts.
func WithRetryPause(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.retryPause = d
		}
	}
}

// WithUpdateTimeout caps the wall-clock duration of a whole update run.
func WithUpdateTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.updateTimeout = d
		}
	}
}

// WithBootloaderAliases replaces the advertised-name alias set accepted when
// rediscovering the device in bootloader mode.
func WithBootloaderAliases(aliases []string) Option {
	return func(c *config) {
		c.aliases = aliases
	}
}

// WithLogger sets the diagnostic observer.
func WithLogger(log Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressCallback) Option {
	return func(c *config) {
		c.progress = fn
	}
}
