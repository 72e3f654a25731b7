// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package harness

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// testLogWriter writes each log line to the test log, until closed. Writes
// after the test completes would otherwise panic.
type testLogWriter struct {
	t      testing.TB
	mu     sync.Mutex
	closed bool
}

func newLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

func (x *testLogWriter) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.closed {
		x.t.Log(string(bytes.TrimRight(p, "\n")))
	}
	return len(p), nil
}

func (x *testLogWriter) close() {
	x.mu.Lock()
	x.closed = true
	x.mu.Unlock()
}
