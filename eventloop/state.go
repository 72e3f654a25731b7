// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
//	StateAwake → StateRunning            [Run()]
//	StateAwake → StateTerminated         [Shutdown() / Close() before Run()]
//	StateRunning → StateTerminating      [Shutdown() / Close() / ctx]
//	StateTerminating → StateTerminated   [drain complete]
//	StateTerminated → (terminal)
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates the loop goroutine is dispatching work.
	StateRunning
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates the loop has been stopped and is fully shut down.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// loopState is a lock-free state cell.
type loopState struct {
	v atomic.Uint64
}

func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store must only be used for irreversible states.
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// CanAcceptWork reports whether Submit should accept tasks. Terminating loops
// still accept work, so in-flight operations can complete during the drain.
func (s *loopState) CanAcceptWork() bool {
	return s.Load() != StateTerminated
}
