// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package eventloop provides a small, single goroutine, cooperative event
// loop, along with loop-bound event sources ([Signal]) and one-shot timers
// ([Timer]).
//
// It models the dispatcher of a widget toolkit: everything that touches UI
// state runs on one goroutine, and other goroutines interact by submitting
// work ([Loop.Submit], [Loop.Do], [Signal.Post]).
//
// # Execution Model
//
// Task priority ordering within each tick:
//  1. Timer callbacks (earliest deadline first)
//  2. Submitted tasks ([Loop.Submit]), bounded by [WithTickBudget]
//  3. Deferred tasks ([Loop.Defer]), drained until empty
//
// Deferred tasks give "end of tick" semantics: work deferred by a timer
// callback runs after any task dispatched later in the same tick.
//
// # Usage
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go func() {
//	    if err := loop.Run(ctx); err != nil {
//	        log.Println(err)
//	    }
//	}()
//	defer loop.Shutdown(context.Background())
//
//	timer := loop.NewTimer()
//	unsubscribe, _ := timer.Subscribe(func() {
//	    fmt.Println("expired")
//	})
//	defer unsubscribe()
//	_ = timer.Start(100 * time.Millisecond)
package eventloop
