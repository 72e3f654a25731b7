// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package fswatch adapts filesystem notifications into an event source,
// dispatched on an [eventloop.Loop]. A Watcher may be waited on using the
// sigwait package.
package fswatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/go-uiharness/eventloop"
	"github.com/joeycumines/logiface"
)

// DefaultOps is used when Config.Ops is unset.
const DefaultOps = fsnotify.Create | fsnotify.Write | fsnotify.Rename

// ErrClosed is returned when adding paths to a closed Watcher.
var ErrClosed = errors.New("fswatch: watcher closed")

type (
	// Config models optional configuration, for New.
	Config struct {
		// Logger receives watcher errors, and dropped events, if non-nil.
		Logger *logiface.Logger[logiface.Event]

		// Filter, if non-nil, must return true for an event to be emitted.
		// It is called from the watcher's own goroutine.
		Filter func(event fsnotify.Event) bool

		// Ops is the set of operations that are emitted.
		// **Defaults to DefaultOps, if 0.**
		Ops fsnotify.Op
	}

	// Watcher emits matching filesystem events, on the loop goroutine.
	// Instances must be initialized using New, and must be closed.
	Watcher struct {
		fsw     *fsnotify.Watcher
		events  *eventloop.Signal[fsnotify.Event]
		logger  *logiface.Logger[logiface.Event]
		filter  func(event fsnotify.Event) bool
		done    chan struct{}
		stopped chan struct{}
		once    sync.Once
		err     error
		ops     fsnotify.Op
	}
)

// New starts a new Watcher, which will post events to loop. The cfg may be
// nil. Paths must be added using Watcher.Add.
func New(loop *eventloop.Loop, cfg *Config) (*Watcher, error) {
	if loop == nil {
		panic(`fswatch: nil loop`)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fswatch: creating fsnotify watcher: %w", err)
	}

	w := Watcher{
		fsw:     fsw,
		events:  eventloop.NewSignal[fsnotify.Event](loop),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		ops:     DefaultOps,
	}

	if cfg != nil {
		w.logger = cfg.Logger
		w.filter = cfg.Filter
		if cfg.Ops != 0 {
			w.ops = cfg.Ops
		}
	}

	go w.run()

	return &w, nil
}

// Add starts watching path, which may be a file or a (non-recursive)
// directory.
func (x *Watcher) Add(path string) error {
	select {
	case <-x.done:
		return ErrClosed
	default:
	}
	if err := x.fsw.Add(path); err != nil {
		return fmt.Errorf("fswatch: watching %s: %w", path, err)
	}
	return nil
}

// Remove stops watching path.
func (x *Watcher) Remove(path string) error {
	if err := x.fsw.Remove(path); err != nil {
		return fmt.Errorf("fswatch: unwatching %s: %w", path, err)
	}
	return nil
}

// Subscribe registers slot to be called on each matching event, returning a
// function to remove it. It implements sigwait.Source.
func (x *Watcher) Subscribe(slot func()) (func() bool, error) {
	return x.events.Subscribe(slot)
}

// Connect registers slot to receive each matching event.
func (x *Watcher) Connect(slot func(event fsnotify.Event)) (eventloop.ConnectionID, error) {
	return x.events.Connect(slot)
}

// Disconnect removes a slot registered using Connect.
func (x *Watcher) Disconnect(id eventloop.ConnectionID) bool {
	return x.events.Disconnect(id)
}

// Events returns the underlying signal.
func (x *Watcher) Events() *eventloop.Signal[fsnotify.Event] {
	return x.events
}

// Close stops watching, and closes the underlying signal, disconnecting all
// slots. Idempotent, subsequent calls return the same error.
func (x *Watcher) Close() error {
	x.once.Do(func() {
		close(x.done)
		x.err = x.fsw.Close()
		<-x.stopped
		x.events.Close()
	})
	return x.err
}

func (x *Watcher) run() {
	defer close(x.stopped)
	for {
		select {
		case <-x.done:
			return

		case event, ok := <-x.fsw.Events:
			if !ok {
				return
			}
			if !x.relevant(event) {
				continue
			}
			if err := x.events.Post(event); err != nil {
				x.logger.Debug().
					Err(err).
					Str(`name`, event.Name).
					Str(`op`, event.Op.String()).
					Log(`fswatch: event dropped`)
			}

		case err, ok := <-x.fsw.Errors:
			if !ok {
				return
			}
			x.logger.Warning().
				Err(err).
				Log(`fswatch: watcher error`)
		}
	}
}

func (x *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&x.ops == 0 {
		return false
	}
	return x.filter == nil || x.filter(event)
}
