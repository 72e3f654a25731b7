// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync"
	"time"
)

// Timer is a one-shot timer, bound to a [Loop]. On expiry, subscribers are
// notified (in subscription order) on the loop goroutine, after which the
// timer is inactive. A Timer may be restarted.
//
// All methods are safe to call from any goroutine.
type Timer struct {
	loop    *Loop
	timeout *Signal[struct{}]
	id      TimerID
	gen     uint64
	mu      sync.Mutex
	active  bool
}

// NewTimer creates a new, inactive timer.
func NewTimer(loop *Loop) *Timer {
	if loop == nil {
		panic(`eventloop: nil loop`)
	}
	return &Timer{
		loop:    loop,
		timeout: NewSignal[struct{}](loop),
	}
}

// Start (re)starts the timer, to expire after d. Any pending expiry is
// cancelled first. Returns an error if the loop cannot accept timers, in which
// case the timer is left inactive.
func (t *Timer) Start(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	t.gen++
	gen := t.gen

	id, err := t.loop.ScheduleTimer(d, func() { t.fire(gen) })
	if err != nil {
		return err
	}

	t.id = id
	t.active = true

	return nil
}

// Stop cancels the timer, if active. Idempotent: stopping an inactive or
// already expired timer is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if !t.active {
		return
	}
	t.active = false
	// ErrTimerNotFound means the callback was already dequeued, and it will
	// observe !active
	_ = t.loop.CancelTimer(t.id)
}

// Active reports whether the timer is started and has not yet expired.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if !t.active || t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()

	t.timeout.dispatch(struct{}{})
}

// Subscribe registers fn to be called on expiry, returning a function that
// removes the subscription.
func (t *Timer) Subscribe(fn func()) (func() bool, error) {
	return t.timeout.Subscribe(fn)
}

// Timeout returns the expiry signal.
func (t *Timer) Timeout() *Signal[struct{}] {
	return t.timeout
}
