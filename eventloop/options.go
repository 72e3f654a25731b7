// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"

	"github.com/joeycumines/logiface"
)

// defaultTickBudget bounds the number of queued tasks run per tick, so timers
// and deferred tasks cannot be starved by a busy producer.
const defaultTickBudget = 1024

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger     *logiface.Logger[logiface.Event]
	tickBudget int
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger configures the structured logger used by the loop, e.g. to
// report recovered panics. A nil logger (the default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTickBudget sets the maximum number of submitted tasks processed per tick.
// **Defaults to 1024.** Must be positive.
func WithTickBudget(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n <= 0 {
			return errors.New("eventloop: tick budget must be positive")
		}
		opts.tickBudget = n
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		tickBudget: defaultTickBudget,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
