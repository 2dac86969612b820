// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import "time"

// Phase identifies the stage an update has reached, for progress reporting.
type Phase int

// Update phases in order of occurrence.
const (
	PhaseJumping Phase = iota
	PhaseReconnecting
	PhaseStarting
	PhaseInitPacket
	PhaseStreaming
	PhaseValidating
	PhaseActivating
	PhaseComplete
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseJumping:
		return "jumping to bootloader"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseStarting:
		return "starting DFU"
	case PhaseInitPacket:
		return "sending init packet"
	case PhaseStreaming:
		return "streaming image"
	case PhaseValidating:
		return "validating"
	case PhaseActivating:
		return "activating"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Progress is a snapshot of update progress passed to the progress callback.
// During PhaseStreaming the byte and chunk counters advance; in other phases
// only Phase and Elapsed are meaningful.
type Progress struct {
	Phase       Phase
	BytesSent   int
	TotalBytes  int
	ChunksSent  int
	TotalChunks int
	Elapsed     time.Duration
}

// ProgressCallback receives progress snapshots. Implementations must return
// quickly; the callback runs on the transfer goroutine between chunk writes.
type ProgressCallback func(Progress)

// Logger is the diagnostic observer injected into the engine. It decouples
// the core from any concrete logging setup; pass nothing to stay silent.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
