// Package log wraps zerolog for the session/server's structured lifecycle
// logging (spec component C9). The teacher names no logging library of
// its own; this follows cyberinferno-go-utils's use of
// github.com/rs/zerolog, the logger the rest of the retrieval pack
// standardizes on.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the handful of levels session and
// server lifecycle events use: debug (handshakeErr, verbose tracing),
// info (expected client mistakes, parse errors), and warn (a session
// closing with a non-nil cause).
type Logger struct {
	z zerolog.Logger
}

// New creates a Logger writing JSON lines to w. If w is nil, os.Stderr
// is used.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{z: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything, the default when no
// logger is configured (spec's logging is an out-of-scope external
// collaborator; this package only supplies the local emission points).
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

// Debug logs a debug-level event, e.g. a silent TLS handshakeErr
// (spec §9 "handshakeErr").
func (l *Logger) Debug(msg string, fields map[string]any) {
	if l == nil {
		return
	}
	ev := l.z.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Info logs an info-level event, e.g. an expected client parse error
// (spec §7 ParseFailure).
func (l *Logger) Info(msg string, fields map[string]any) {
	if l == nil {
		return
	}
	ev := l.z.Info()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Warn logs a warn-level event, e.g. a session entering Closing with a
// non-nil cause.
func (l *Logger) Warn(msg string, err error, fields map[string]any) {
	if l == nil {
		return
	}
	ev := l.z.Warn()
	if err != nil {
		ev = ev.Err(err)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
