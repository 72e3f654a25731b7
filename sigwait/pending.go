// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package sigwait

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-uiharness/eventloop"
)

// State models the lifecycle of a Pending wait.
//
//	StateArming → StateWaiting      [subscriptions active, timer running]
//	StateWaiting → StateSatisfied   [event, timeout, or cancel; exactly once]
//	StateSatisfied → StateCleanedUp [timer stopped, subscriptions removed]
//	StateArming → StateCleanedUp    [arm failed, or cancelled before arming]
type State int32

const (
	StateArming State = iota
	StateWaiting
	StateSatisfied
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateArming:
		return "Arming"
	case StateWaiting:
		return "Waiting"
	case StateSatisfied:
		return "Satisfied"
	case StateCleanedUp:
		return "CleanedUp"
	default:
		return "Unknown"
	}
}

// Pending is an armed wait, see Helper.Arm.
type Pending struct {
	helper       *Helper
	timer        Timer
	unsubEvent   func() bool
	unsubTimeout func() bool
	err          error
	done         chan struct{}
	started      time.Time
	timeout      time.Duration
	elapsed      time.Duration
	mu           sync.Mutex
	state        State
	result       bool
}

func newPending(helper *Helper, timeout time.Duration) *Pending {
	return &Pending{
		helper:  helper,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// arm runs on the loop goroutine. Notifications delivered while subscribing
// are ignored. A panic while subscribing (e.g. a typed nil source) unwinds
// any partial subscriptions, and is returned as an error.
func (x *Pending) arm(source Source) (err error) {
	x.mu.Lock()
	if x.state != StateArming {
		x.mu.Unlock()
		return ErrCancelled
	}
	x.mu.Unlock()

	var (
		subscribed   bool
		timer        Timer
		unsubEvent   func() bool
		unsubTimeout func() bool
	)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause := eventloop.PanicError{Value: r}
		rollback(timer, unsubEvent, unsubTimeout)
		x.abort(cause)
		if !subscribed {
			err = fmt.Errorf("sigwait: subscribe to source: %w: %w", ErrInvalidSource, cause)
		} else {
			err = fmt.Errorf("sigwait: arm: %w", cause)
		}
	}()

	unsubEvent, err = source.Subscribe(x.onEvent)
	if err != nil {
		x.abort(err)
		return fmt.Errorf("sigwait: subscribe to source: %w", err)
	}
	if unsubEvent == nil {
		x.abort(ErrInvalidSource)
		return fmt.Errorf("sigwait: subscribe to source: %w: nil unsubscribe", ErrInvalidSource)
	}
	subscribed = true

	timer = x.helper.newTimer()

	unsubTimeout, err = timer.Subscribe(x.onTimeout)
	if err != nil {
		rollback(nil, unsubEvent, nil)
		x.abort(err)
		return fmt.Errorf("sigwait: subscribe to timer: %w", err)
	}

	if err := timer.Start(x.timeout); err != nil {
		rollback(timer, unsubEvent, unsubTimeout)
		x.abort(err)
		return fmt.Errorf("sigwait: start timer: %w", err)
	}

	x.mu.Lock()
	if x.state != StateArming {
		x.mu.Unlock()
		rollback(timer, unsubEvent, unsubTimeout)
		return ErrCancelled
	}
	x.timer = timer
	x.unsubEvent = unsubEvent
	x.unsubTimeout = unsubTimeout
	x.started = time.Now()
	x.state = StateWaiting
	x.mu.Unlock()

	x.helper.logger.Trace().
		Dur(`timeout`, x.timeout).
		Log(`wait armed`)

	return nil
}

// rollback undoes a partial arm. Each step is attempted, even if an earlier
// one panics.
func rollback(timer Timer, unsubEvent, unsubTimeout func() bool) {
	if timer != nil {
		safely(timer.Stop)
	}
	if unsubTimeout != nil {
		safely(func() { unsubTimeout() })
	}
	if unsubEvent != nil {
		safely(func() { unsubEvent() })
	}
}

func safely(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func (x *Pending) abort(err error) {
	x.mu.Lock()
	if x.state == StateCleanedUp {
		x.mu.Unlock()
		return
	}
	x.state = StateCleanedUp
	x.err = err
	x.mu.Unlock()
	close(x.done)
}

func (x *Pending) onEvent() {
	x.settle(true, nil)
}

// onTimeout defers settlement to the end of the tick, so that the target
// event wins, if dispatched within the same tick.
func (x *Pending) onTimeout() {
	x.helper.loop.Defer(func() { x.settle(false, nil) })
}

func (x *Pending) settle(result bool, err error) {
	x.mu.Lock()
	if x.state != StateWaiting {
		x.mu.Unlock()
		return
	}
	x.state = StateSatisfied
	x.result = result
	x.err = err
	x.elapsed = time.Since(x.started)
	timer, unsubEvent, unsubTimeout := x.timer, x.unsubEvent, x.unsubTimeout
	x.mu.Unlock()

	timer.Stop()
	unsubEvent()
	unsubTimeout()

	x.mu.Lock()
	x.state = StateCleanedUp
	x.mu.Unlock()

	close(x.done)

	b := x.helper.logger.Debug()
	if err != nil {
		b = b.Err(err)
	}
	b.Bool(`fired`, result).
		Dur(`elapsed`, x.elapsed).
		Dur(`timeout`, x.timeout).
		Log(`wait complete`)
}

func (x *Pending) cancel(reason error) {
	x.mu.Lock()
	switch x.state {
	case StateArming:
		x.mu.Unlock()
		x.abort(reason)
	case StateWaiting:
		x.mu.Unlock()
		x.settle(false, reason)
	default:
		x.mu.Unlock()
	}
}

func (x *Pending) cancelWith(reason error) {
	if x.State() == StateCleanedUp {
		return
	}

	loop := x.helper.loop

	if loop.InLoop() {
		x.cancel(reason)
		return
	}

	if err := loop.Submit(func() { x.cancel(reason) }); err != nil {
		// nothing is dispatching, so nothing can race
		x.cancel(reason)
		return
	}

	select {
	case <-x.done:
	case <-loop.Done():
		x.cancel(reason)
		<-x.done
	}
}

// Cancel cancels the wait, if it is not already complete, and waits for
// cleanup. Idempotent. Safe to call from any goroutine, including the loop.
func (x *Pending) Cancel() {
	x.cancelWith(ErrCancelled)
}

// Wait blocks until the wait completes, returning true if the target event
// fired before the timeout. The subscriptions are always removed, and the
// timer stopped, before Wait returns. If ctx is cancelled first, the wait is
// cancelled, and ctx.Err() returned.
func (x *Pending) Wait(ctx context.Context) (bool, error) {
	loop := x.helper.loop

	if loop.InLoop() {
		return false, ErrWaitInLoop
	}

	select {
	case <-x.done:
	case <-ctx.Done():
		x.cancelWith(ctx.Err())
	case <-loop.Done():
		x.cancelWith(ErrLoopStopped)
	}

	return x.Result()
}

// Done is closed once the wait has reached StateCleanedUp.
func (x *Pending) Done() <-chan struct{} {
	return x.done
}

// Result returns the outcome. Only meaningful once Done is closed.
func (x *Pending) Result() (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.result, x.err
}

// State returns the current lifecycle state.
func (x *Pending) State() State {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

// Elapsed returns the time between arming and completion.
func (x *Pending) Elapsed() time.Duration {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.elapsed
}
