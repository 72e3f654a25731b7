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
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-uiharness/eventloop"
	"github.com/joeycumines/go-uiharness/sigwait"
)

const (
	// SettingsAction is triggered by Fixture.OpenSettings.
	SettingsAction = `mSettings/aSettings`

	dialogPollInterval = 20 * time.Millisecond
	dialogPollAttempts = 50
)

var (
	// ErrDialogNotFound is returned by Fixture.OpenDialog if no dialog, that
	// contains the focus widget, became visible in time.
	ErrDialogNotFound = errors.New("harness: dialog not found")

	// ErrDockNotFound is returned by Fixture.FindDock.
	ErrDockNotFound = errors.New("harness: dock not found")
)

// FindDialog returns the first visible top-level dialog, or nil.
func (x *Fixture) FindDialog() Widget {
	var dialog Widget
	_ = x.Do(func() error {
		dialog = x.findDialog()
		return nil
	})
	return dialog
}

func (x *Fixture) findDialog() Widget {
	for _, widget := range x.app.TopLevelWidgets() {
		if widget.Visible() && widget.Kind() == KindDialog {
			return widget
		}
	}
	return nil
}

func isDescendant(ancestor, widget Widget) bool {
	for ; widget != nil; widget = widget.Parent() {
		if widget == ancestor {
			return true
		}
	}
	return false
}

// OpenDialog calls open on the loop goroutine, then polls (every 20ms, up to
// 50 times) for a visible dialog that contains the focus widget, calling run
// with it, also on the loop goroutine. The first poll is scheduled before
// open is called, so open may block in a nested dispatch (e.g. a modal
// dialog), as long as that dispatch runs loop timers.
//
// Returns the error from open or run, ErrDialogNotFound, or ErrFinished if
// the fixture is torn down first. Must not be called from the loop goroutine.
func (x *Fixture) OpenDialog(open func() error, run func(dialog Widget) error) error {
	if open == nil || run == nil {
		panic(`harness: nil dialog callback`)
	}
	if x.Loop.InLoop() {
		return sigwait.ErrWaitInLoop
	}

	var (
		result    = make(chan error, 1)
		cancelled atomic.Bool
		poll      func(attempt int)
	)

	schedule := func(attempt int) error {
		_, err := x.Loop.ScheduleTimer(dialogPollInterval, func() { poll(attempt) })
		return err
	}

	poll = func(attempt int) {
		if cancelled.Load() {
			return
		}

		if x.finished.Load() {
			result <- ErrFinished
			return
		}

		if dialog := x.findDialog(); dialog != nil && isDescendant(dialog, x.app.FocusWidget()) {
			x.Logger.Debug().
				Int(`attempt`, attempt).
				Str(`title`, dialog.Title()).
				Log(`dialog found`)
			// inline, with panics recovered
			result <- x.Loop.Do(context.Background(), func() error { return run(dialog) })
			return
		}

		if attempt >= dialogPollAttempts {
			result <- fmt.Errorf("%w after %d attempts", ErrDialogNotFound, attempt)
			return
		}

		if _, ok := x.dialogLimiter.Allow(`dialog-poll`); ok {
			x.Logger.Debug().
				Int(`attempt`, attempt).
				Log(`dialog not visible yet`)
		}

		if err := schedule(attempt + 1); err != nil {
			result <- err
		}
	}

	if err := x.Do(func() error {
		if err := schedule(1); err != nil {
			return err
		}
		return open()
	}); err != nil {
		cancelled.Store(true)
		return err
	}

	select {
	case err := <-result:
		return err
	case <-x.Loop.Done():
		select {
		case err := <-result:
			return err
		default:
			return eventloop.ErrLoopTerminated
		}
	}
}

// OpenSettings opens the settings dialog, by triggering SettingsAction, then
// calls run with it, as per OpenDialog.
func (x *Fixture) OpenSettings(run func(dialog Widget) error) error {
	return x.OpenDialog(func() error { return x.core.TriggerAction(SettingsAction) }, run)
}

// FindDock returns the dock with the given window title.
func (x *Fixture) FindDock(title string) (Widget, error) {
	var dock Widget
	if err := x.Do(func() error {
		for _, widget := range x.core.Docks() {
			if widget.Title() == title {
				dock = widget
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrDockNotFound, title)
	}); err != nil {
		return nil, err
	}
	return dock, nil
}
