// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 oltaco

package cmd

import (
	"fmt"
	"os"
	"time"
)

// cliLogger writes timestamped log lines to stderr. Debug lines are emitted
// only in verbose mode.
type cliLogger struct {
	debug bool
}

func newCLILogger() *cliLogger {
	return &cliLogger{debug: verbose}
}

func (l *cliLogger) line(level, msg string, keysAndValues []interface{}) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(os.Stderr, "%s %s %s", ts, level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(os.Stderr, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	fmt.Fprintln(os.Stderr)
}

func (l *cliLogger) Debug(msg string, keysAndValues ...interface{}) {
	if l.debug {
		l.line("DBG", msg, keysAndValues)
	}
}

func (l *cliLogger) Info(msg string, keysAndValues ...interface{}) {
	l.line("INF", msg, keysAndValues)
}

func (l *cliLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.line("WRN", msg, keysAndValues)
}

func (l *cliLogger) Error(msg string, keysAndValues ...interface{}) {
	l.line("ERR", msg, keysAndValues)
}
