// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package sigwait waits for one of two competing notifications: a target
// event, or a timeout.
//
// Subscriptions, the timer, and settlement of the wait all happen on the loop
// goroutine, while the caller blocks (on its own goroutine) in a select. There
// is no nested dispatch: the loop keeps running other work while a caller
// waits. Cleanup (stopping the timer, removing both subscriptions) happens on
// the loop goroutine, in the callback that settles the wait, before the
// result is published. After a wait returns, further notifications from the
// source have no effect attributable to it.
//
// If the target event and the timeout occur within the same loop tick, the
// target event wins. The timeout callback defers settlement to the end of the
// tick, using Loop.Defer, so that any emission dispatched during that tick
// settles first.
//
// To avoid missing notifications triggered by an action, arm the wait before
// performing the action, using Helper.Arm or Helper.WaitFor:
//
//	fired, err := helper.WaitFor(ctx, doc.Saved(), time.Second, func() error {
//	    return fixture.KeyClick(`Ctrl+S`)
//	})
package sigwait
