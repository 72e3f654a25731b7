// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrTimerNotFound is returned by [Loop.CancelTimer] if the timer already
	// fired, was already cancelled, or never existed.
	ErrTimerNotFound = errors.New("eventloop: timer not found")

	// ErrInvalidSource is returned when connecting to a [Signal] (or anything
	// built on one) that has been closed.
	ErrInvalidSource = errors.New("eventloop: invalid source")

	// ErrNilTask is returned when submitting or scheduling a nil function.
	ErrNilTask = errors.New("eventloop: nil task")

	// ErrNilSlot is returned when connecting a nil callback.
	ErrNilSlot = errors.New("eventloop: nil slot")

	// ErrNegativeDelay is returned when scheduling with a negative duration.
	ErrNegativeDelay = errors.New("eventloop: negative delay")
)

// PanicError wraps a value recovered from a panicking task, see [Loop.Do].
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: task panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
