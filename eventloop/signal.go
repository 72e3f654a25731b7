// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync"
)

type (
	// ConnectionID uniquely identifies a slot connected to a [Signal].
	// In Go, functions cannot be reliably compared for equality, so we
	// generate a unique ID for each connection.
	ConnectionID uint64

	// Signal is an event source bound to a [Loop]. Slots are invoked
	// synchronously, in connection order, on the loop goroutine.
	//
	// Connect, Disconnect, Post and Close are safe to call from any
	// goroutine. Emit dispatches synchronously only when called from the loop
	// goroutine, see [Signal.Emit].
	//
	// Usage:
	//
	//	saved := eventloop.NewSignal[string](loop)
	//
	//	id, err := saved.Connect(func(path string) {
	//	    fmt.Println("saved", path)
	//	})
	//
	//	// from any goroutine
	//	_ = saved.Post("/tmp/file.txt")
	//
	//	saved.Disconnect(id)
	Signal[T any] struct {
		loop   *Loop
		slots  []slotEntry[T]
		active map[ConnectionID]struct{}
		nextID ConnectionID
		mu     sync.RWMutex
		closed bool
	}

	slotEntry[T any] struct {
		slot func(T)
		id   ConnectionID
	}
)

// NewSignal creates a new signal, dispatching on loop.
func NewSignal[T any](loop *Loop) *Signal[T] {
	if loop == nil {
		panic(`eventloop: nil loop`)
	}
	return &Signal[T]{
		loop:   loop,
		active: make(map[ConnectionID]struct{}),
		nextID: 1,
	}
}

// Connect registers slot, returning an ID that may be used to disconnect it.
// Returns [ErrInvalidSource] if the signal has been closed.
func (s *Signal[T]) Connect(slot func(T)) (ConnectionID, error) {
	if slot == nil {
		return 0, ErrNilSlot
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrInvalidSource
	}

	id := s.nextID
	s.nextID++

	s.slots = append(s.slots, slotEntry[T]{id: id, slot: slot})
	s.active[id] = struct{}{}

	return id, nil
}

// Disconnect removes a slot by ID, returning true if it was connected.
//
// A slot disconnected while an emission is being dispatched will not be
// invoked by that emission, if it had not already been.
func (s *Signal[T]) Disconnect(id ConnectionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; !ok {
		return false
	}
	delete(s.active, id)

	for i, entry := range s.slots {
		if entry.id == id {
			s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
			break
		}
	}

	return true
}

// Subscribe connects a slot that ignores the emitted value, returning a
// function that disconnects it (reporting whether it was still connected).
func (s *Signal[T]) Subscribe(slot func()) (func() bool, error) {
	if slot == nil {
		return nil, ErrNilSlot
	}
	id, err := s.Connect(func(T) { slot() })
	if err != nil {
		return nil, err
	}
	return func() bool { return s.Disconnect(id) }, nil
}

// Emit notifies all connected slots, in connection order.
//
// When called from the loop goroutine, dispatch is synchronous. Otherwise,
// Emit behaves like [Signal.Post], logging any failure to queue.
func (s *Signal[T]) Emit(value T) {
	if !s.loop.InLoop() {
		if err := s.Post(value); err != nil {
			s.loop.logger.Warning().
				Err(err).
				Log(`signal emission dropped`)
		}
		return
	}
	s.dispatch(value)
}

// Post queues an emission, to be dispatched on the loop goroutine.
func (s *Signal[T]) Post(value T) error {
	return s.loop.Submit(func() { s.dispatch(value) })
}

func (s *Signal[T]) dispatch(value T) {
	// copy to avoid holding the lock during dispatch
	s.mu.RLock()
	if s.closed || len(s.slots) == 0 {
		s.mu.RUnlock()
		return
	}
	entries := make([]slotEntry[T], len(s.slots))
	copy(entries, s.slots)
	s.mu.RUnlock()

	for _, entry := range entries {
		if !s.connected(entry.id) {
			continue
		}
		entry.slot(value)
	}
}

func (s *Signal[T]) connected(id ConnectionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[id]
	return ok
}

// ConnectionCount returns the number of connected slots.
func (s *Signal[T]) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Close disconnects all slots, and prevents further connections.
// Pending emissions are dropped. Idempotent.
func (s *Signal[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.slots = nil
	clear(s.active)
}

// Closed reports whether Close has been called.
func (s *Signal[T]) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Loop returns the loop the signal dispatches on.
func (s *Signal[T]) Loop() *Loop {
	return s.loop
}
