// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package harness

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errMainWindowHidden = errors.New("harness: main window not visible")

const (
	pendingEventsTimeout       = 100 * time.Millisecond
	sleepProcessEventsInterval = 10 * time.Millisecond
)

// ProcessPendingEvents waits for the loop to dispatch pending tasks and
// expired timers, including any they schedule, up to 100ms. A no-op on the
// loop goroutine.
func (x *Fixture) ProcessPendingEvents() {
	if x.Loop.InLoop() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pendingEventsTimeout)
	defer cancel()
	for {
		if err := x.Loop.Do(ctx, func() error { return nil }); err != nil {
			return
		}
		if !x.Loop.HasPendingEvents() {
			return
		}
	}
}

// SleepProcessEvents sleeps for d, processing pending events every 10ms.
func (x *Fixture) SleepProcessEvents(d time.Duration) {
	end := time.Now().Add(d)
	for {
		x.ProcessPendingEvents()
		remaining := time.Until(end)
		if remaining <= 0 {
			return
		}
		time.Sleep(min(remaining, sleepProcessEventsInterval))
	}
}

// InMainLoop shows the main window, processes pending events, then calls fn,
// processing pending events again once it returns. The loop runs for the
// whole life of the fixture, so fn runs on the calling goroutine, and may
// block on the loop (e.g. WaitForSignal).
func (x *Fixture) InMainLoop(fn func()) error {
	if err := x.Do(func() error {
		if err := x.core.ShowMainWindow(); err != nil {
			return err
		}
		if window := x.core.MainWindow(); window == nil || !window.Visible() {
			return errMainWindowHidden
		}
		return nil
	}); err != nil {
		return fmt.Errorf("harness: show main window: %w", err)
	}

	x.ProcessPendingEvents()
	defer x.ProcessPendingEvents()

	fn()

	return nil
}
