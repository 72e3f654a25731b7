// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package sigwait

import (
	"context"
	"errors"
	"time"

	"github.com/joeycumines/go-uiharness/eventloop"
	"github.com/joeycumines/logiface"
)

// DefaultTimeout is used when Config.Timeout is unset.
const DefaultTimeout = time.Second

var (
	// ErrInvalidSource indicates a nil or destroyed event source. It is the
	// same value as [eventloop.ErrInvalidSource].
	ErrInvalidSource = eventloop.ErrInvalidSource

	// ErrWaitInLoop is returned when a blocking wait is attempted on the loop
	// goroutine, which would otherwise deadlock.
	ErrWaitInLoop = errors.New("sigwait: cannot block on the loop goroutine")

	// ErrNegativeTimeout is returned for timeouts < 0.
	ErrNegativeTimeout = errors.New("sigwait: negative timeout")

	// ErrCancelled is returned by Pending.Wait after Pending.Cancel.
	ErrCancelled = errors.New("sigwait: wait cancelled")

	// ErrLoopStopped is returned if the loop stops dispatching before the
	// wait completes.
	ErrLoopStopped = errors.New("sigwait: loop stopped")
)

type (
	// Source is an event source that may be subscribed to, and later
	// unsubscribed from. The returned unsubscribe function reports whether
	// the subscription was still present.
	//
	// Subscribe and unsubscribe are only called on the loop goroutine.
	Source interface {
		Subscribe(slot func()) (unsubscribe func() bool, err error)
	}

	// Timer is a one-shot timer, that notifies subscribers on expiry, see
	// also [eventloop.Timer]. Stop must be idempotent.
	Timer interface {
		Source
		Start(d time.Duration) error
		Stop()
		Active() bool
	}

	// Loop is the single goroutine dispatcher that sources and timers
	// deliver their notifications on, see also [eventloop.Loop].
	Loop interface {
		// Submit queues a task, and must be safe to call from any goroutine.
		Submit(task func()) error
		// Defer runs task at the end of the current tick, and is only called
		// from the loop goroutine.
		Defer(task func())
		// InLoop reports whether the caller is the loop goroutine.
		InLoop() bool
		// Done is closed once the loop has stopped dispatching.
		Done() <-chan struct{}
	}

	// Config models configuration, for New and ForLoop.
	Config struct {
		// Loop is the dispatcher. Required by New, set by ForLoop.
		Loop Loop

		// NewTimer allocates a fresh timer, per wait. Required by New, set
		// by ForLoop.
		NewTimer func() Timer

		// Logger is used for debug logging, if non-nil.
		Logger *logiface.Logger[logiface.Event]

		// Timeout is used by Helper.Wait.
		// **Defaults to 1s, if 0, or Config is nil.**
		Timeout time.Duration
	}

	// Helper waits for one of two competing notifications, from a target
	// Source or from a timeout. Instances must be initialized using New or
	// ForLoop, and are safe for concurrent use.
	Helper struct {
		loop     Loop
		newTimer func() Timer
		logger   *logiface.Logger[logiface.Event]
		timeout  time.Duration
	}
)

// New initializes a new Helper. A panic will occur if cfg is nil, or is
// missing Loop or NewTimer.
func New(cfg *Config) *Helper {
	if cfg == nil || cfg.Loop == nil {
		panic(`sigwait: nil loop`)
	}
	if cfg.NewTimer == nil {
		panic(`sigwait: nil timer factory`)
	}

	h := Helper{
		loop:     cfg.Loop,
		newTimer: cfg.NewTimer,
		logger:   cfg.Logger,
		timeout:  DefaultTimeout,
	}

	if cfg.Timeout != 0 {
		h.timeout = cfg.Timeout
	}

	if h.timeout < 0 {
		panic(`sigwait: negative timeout`)
	}

	return &h
}

// ForLoop initializes a new Helper, using an [eventloop.Loop], and timers
// allocated by [eventloop.NewTimer]. The provided config may be nil, and its
// Loop and NewTimer fields are ignored.
func ForLoop(loop *eventloop.Loop, cfg *Config) *Helper {
	if loop == nil {
		panic(`sigwait: nil loop`)
	}
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.Loop = loop
	c.NewTimer = func() Timer { return eventloop.NewTimer(loop) }
	return New(&c)
}

// Wait is a convenience function, equivalent to
// ForLoop(loop, nil).WaitTimeout(ctx, source, timeout).
func Wait(ctx context.Context, loop *eventloop.Loop, source Source, timeout time.Duration) (bool, error) {
	return ForLoop(loop, nil).WaitTimeout(ctx, source, timeout)
}

// Timeout returns the timeout used by Helper.Wait.
func (x *Helper) Timeout() time.Duration {
	return x.timeout
}

// Wait is WaitTimeout, using the configured timeout.
func (x *Helper) Wait(ctx context.Context, source Source) (bool, error) {
	return x.WaitTimeout(ctx, source, x.timeout)
}

// WaitTimeout blocks until source notifies (returning true), or timeout
// elapses (returning false). Both subscriptions are removed and the timer is
// stopped before it returns, regardless of outcome.
//
// If source notifies during the same loop tick that the timer expires, the
// event wins, i.e. true is returned.
//
// An error is returned if source is invalid (in which case no timer is
// started), the timer could not be started, ctx was cancelled, or if called
// from the loop goroutine (ErrWaitInLoop).
func (x *Helper) WaitTimeout(ctx context.Context, source Source, timeout time.Duration) (bool, error) {
	return x.WaitFor(ctx, source, timeout, nil)
}

// WaitFor arms a wait, runs trigger, then waits, as per WaitTimeout. Arming
// before running trigger means notifications caused synchronously by trigger
// are not missed. If trigger returns an error (or panics), the wait is
// cancelled, and the error is returned (or the panic propagated).
//
// Trigger runs on the calling goroutine.
func (x *Helper) WaitFor(ctx context.Context, source Source, timeout time.Duration, trigger func() error) (bool, error) {
	if x.loop.InLoop() {
		return false, ErrWaitInLoop
	}

	p, err := x.Arm(ctx, source, timeout)
	if err != nil {
		return false, err
	}
	defer p.Cancel()

	if trigger != nil {
		if err := trigger(); err != nil {
			return false, err
		}
	}

	return p.Wait(ctx)
}

// Arm subscribes to source and starts a timer immediately, returning a
// Pending wait. Callers must either Wait or Cancel the result.
//
// Arm may be called from the loop goroutine (only waiting may not).
func (x *Helper) Arm(ctx context.Context, source Source, timeout time.Duration) (*Pending, error) {
	if source == nil {
		return nil, ErrInvalidSource
	}
	if timeout < 0 {
		return nil, ErrNegativeTimeout
	}

	p := newPending(x, timeout)

	if x.loop.InLoop() {
		if err := p.arm(source); err != nil {
			return nil, err
		}
		return p, nil
	}

	result := make(chan error, 1)
	if err := x.loop.Submit(func() { result <- p.arm(source) }); err != nil {
		return nil, err
	}

	select {
	case err := <-result:
		if err != nil {
			return nil, err
		}
		return p, nil
	case <-ctx.Done():
		// FIFO dispatch: the cancel is guaranteed to run after arm
		p.cancelWith(ctx.Err())
		return nil, ctx.Err()
	case <-x.loop.Done():
		select {
		case err := <-result:
			if err != nil {
				return nil, err
			}
			return p, nil
		default:
			p.cancelWith(ErrLoopStopped)
			return nil, ErrLoopStopped
		}
	}
}
