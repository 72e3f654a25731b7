// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"container/heap"
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

type (
	// TimerID identifies a timer scheduled via [Loop.ScheduleTimer].
	TimerID uint64

	// Loop is a single goroutine, cooperative event loop.
	//
	// All callbacks (submitted tasks, timers, deferred tasks) run on the
	// goroutine that called [Loop.Run], one at a time. Each tick:
	//
	//  1. Expired timers (earliest deadline first, scheduling order on ties)
	//  2. Submitted tasks (FIFO, bounded by the tick budget)
	//  3. Deferred tasks ([Loop.Defer]), until none remain
	//
	// Instances must be initialized using [New].
	Loop struct { // betteralign:ignore
		// Prevent copying
		_ [0]func()

		logger *logiface.Logger[logiface.Event]
		state  loopState

		wake     chan struct{}
		done     chan struct{}
		doneOnce sync.Once
		closing  atomic.Bool

		// submitted tasks, guarded by queueMu
		queueMu  sync.Mutex
		queue    []func()
		queueBuf []func() // loop goroutine only

		// timer heap, guarded by timerMu
		timerMu     sync.Mutex
		timers      timerHeap
		timerIndex  map[TimerID]*timer
		timerSeq    uint64
		nextTimerID atomic.Uint64

		// loop goroutine only
		deferred  []func()
		tickCount uint64

		tickBudget      int
		loopGoroutineID atomic.Uint64
		tickAnchor      time.Time
		tickElapsed     atomic.Int64
	}

	timer struct {
		when  time.Time
		fn    func()
		id    TimerID
		seq   uint64
		index int
	}

	// timerHeap is a min-heap of timers, by deadline then scheduling order.
	timerHeap []*timer
)

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[:n-1]
	return x
}

// New creates a new event loop. The loop does nothing until [Loop.Run] is
// called, though tasks and timers may be scheduled beforehand.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Loop{
		logger:     cfg.logger,
		tickBudget: cfg.tickBudget,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		timerIndex: make(map[TimerID]*timer),
		tickAnchor: time.Now(),
	}, nil
}

// Run runs the event loop and blocks until fully stopped.
//
// Run blocks until the loop terminates (via Shutdown(), Close(), or ctx
// cancellation). If ctx is cancelled, queued work is drained, and ctx.Err()
// is returned. To run in a separate goroutine, use: `go loop.Run(ctx)`.
func (l *Loop) Run(ctx context.Context) error {
	if l.InLoop() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	return l.run(ctx)
}

func (l *Loop) run(ctx context.Context) (err error) {
	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	l.logger.Debug().Log(`loop started`)
	defer l.logger.Debug().Log(`loop stopped`)

	sleepTimer := time.NewTimer(time.Hour)
	sleepTimer.Stop()
	defer sleepTimer.Stop()

	for {
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
			for {
				current := l.state.Load()
				if current != StateRunning || l.state.TryTransition(current, StateTerminating) {
					break
				}
			}
		}

		if l.state.Load() != StateRunning {
			l.terminate()
			return err
		}

		l.tick()
		l.sleep(ctx, sleepTimer)
	}
}

// tick is a single iteration of the event loop.
func (l *Loop) tick() {
	l.tickCount++

	now := time.Now()
	l.tickElapsed.Store(int64(now.Sub(l.tickAnchor)))

	l.runTimers(now)
	l.processQueue(l.tickBudget)
	l.drainDeferred()
}

// sleep blocks until there may be more work.
func (l *Loop) sleep(ctx context.Context, t *time.Timer) {
	l.queueMu.Lock()
	pending := len(l.queue) != 0
	l.queueMu.Unlock()
	if pending || l.state.Load() != StateRunning {
		return
	}

	var timerC <-chan time.Time
	if delay, ok := l.nextTimerDelay(); ok {
		if delay <= 0 {
			return
		}
		t.Reset(delay)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case <-l.wake:
	case <-timerC:
	case <-ctx.Done():
	}
}

// terminate drains queued work (unless closing), then marks the loop
// terminated. Pending timers are discarded.
func (l *Loop) terminate() {
	for {
		if l.closing.Load() {
			l.queueMu.Lock()
			clear(l.queue)
			l.queue = l.queue[:0]
			l.queueMu.Unlock()
		}

		l.processQueue(math.MaxInt)
		l.drainDeferred()

		l.queueMu.Lock()
		if len(l.queue) == 0 {
			l.state.Store(StateTerminated)
			l.queue = nil
			l.queueMu.Unlock()
			break
		}
		l.queueMu.Unlock()
	}

	l.timerMu.Lock()
	clear(l.timers)
	l.timers = nil
	clear(l.timerIndex)
	l.timerMu.Unlock()

	l.finish()
}

func (l *Loop) finish() {
	l.doneOnce.Do(func() { close(l.done) })
}

// processQueue runs up to budget submitted tasks, returning the number run.
func (l *Loop) processQueue(budget int) int {
	l.queueMu.Lock()
	n := len(l.queue)
	if n > budget {
		n = budget
	}
	if n == 0 {
		l.queueMu.Unlock()
		return 0
	}
	old := len(l.queue)
	batch := append(l.queueBuf[:0], l.queue[:n]...)
	copy(l.queue, l.queue[n:])
	clear(l.queue[old-n : old])
	l.queue = l.queue[:old-n]
	l.queueMu.Unlock()

	for i, task := range batch {
		batch[i] = nil
		l.safeExecute(task)
	}
	l.queueBuf = batch[:0]

	return n
}

// drainDeferred runs deferred tasks, including any deferred while draining.
func (l *Loop) drainDeferred() {
	for i := 0; i < len(l.deferred); i++ {
		task := l.deferred[i]
		l.deferred[i] = nil
		l.safeExecute(task)
	}
	l.deferred = l.deferred[:0]
}

// runTimers executes all timers that expired as of now.
func (l *Loop) runTimers(now time.Time) {
	for {
		l.timerMu.Lock()
		if len(l.timers) == 0 || l.timers[0].when.After(now) {
			l.timerMu.Unlock()
			return
		}
		t := heap.Pop(&l.timers).(*timer)
		delete(l.timerIndex, t.id)
		l.timerMu.Unlock()

		l.safeExecute(t.fn)
	}
}

func (l *Loop) nextTimerDelay() (time.Duration, bool) {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()
	if len(l.timers) == 0 {
		return 0, false
	}
	return time.Until(l.timers[0].when), true
}

// Shutdown gracefully shuts down the event loop.
//
// Shutdown waits for all queued tasks to complete, but discards pending
// timers. It blocks until termination completes or ctx expires. If called
// from the loop goroutine, it initiates shutdown without waiting.
func (l *Loop) Shutdown(ctx context.Context) error {
	return l.stop(ctx)
}

// Close terminates the event loop, discarding any queued tasks that have not
// yet started. It waits for the currently executing task (if any).
func (l *Loop) Close() error {
	l.closing.Store(true)
	return l.stop(context.Background())
}

func (l *Loop) stop(ctx context.Context) error {
	for {
		current := l.state.Load()
		switch current {
		case StateTerminated:
			return ErrLoopTerminated

		case StateAwake:
			l.queueMu.Lock()
			ok := l.state.TryTransition(StateAwake, StateTerminated)
			if ok {
				clear(l.queue)
				l.queue = nil
			}
			l.queueMu.Unlock()
			if ok {
				l.finish()
				return nil
			}
			continue

		case StateRunning:
			if !l.state.TryTransition(StateRunning, StateTerminating) {
				continue
			}
			l.Wake()
		}

		break
	}

	if l.InLoop() {
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues a task for execution on the loop goroutine.
// Safe to call from any goroutine, including the loop goroutine.
//
// Submission is permitted while the loop is terminating (the task will be
// run as part of the drain), but fails with [ErrLoopTerminated] afterwards.
func (l *Loop) Submit(task func()) error {
	if task == nil {
		return ErrNilTask
	}

	l.queueMu.Lock()
	if !l.state.CanAcceptWork() {
		l.queueMu.Unlock()
		return ErrLoopTerminated
	}
	l.queue = append(l.queue, task)
	l.queueMu.Unlock()

	l.Wake()

	return nil
}

// Do runs task on the loop goroutine and waits for it to complete, returning
// its error. Panics are recovered, and returned as a [PanicError].
//
// If called from the loop goroutine, task is run inline.
func (l *Loop) Do(ctx context.Context, task func() error) error {
	if task == nil {
		return ErrNilTask
	}

	if l.InLoop() {
		return callTask(task)
	}

	result := make(chan error, 1)
	if err := l.Submit(func() { result <- callTask(task) }); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopTerminated
		}
	}
}

func callTask(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return task()
}

// Defer queues task to run at the end of the current tick, after all timers
// and submitted tasks for that tick. Tasks deferred while draining run in the
// same drain. Must be called from the loop goroutine.
func (l *Loop) Defer(task func()) {
	if task == nil {
		return
	}
	if !l.InLoop() {
		panic(`eventloop: Defer called from outside the loop goroutine`)
	}
	l.deferred = append(l.deferred, task)
}

// ScheduleTimer schedules fn to be run on the loop goroutine after delay.
// Safe to call from any goroutine.
func (l *Loop) ScheduleTimer(delay time.Duration, fn func()) (TimerID, error) {
	if fn == nil {
		return 0, ErrNilTask
	}
	if delay < 0 {
		return 0, ErrNegativeDelay
	}
	if l.state.Load() >= StateTerminating {
		return 0, ErrLoopTerminated
	}

	id := TimerID(l.nextTimerID.Add(1))

	l.timerMu.Lock()
	l.timerSeq++
	t := &timer{
		when: time.Now().Add(delay),
		fn:   fn,
		id:   id,
		seq:  l.timerSeq,
	}
	heap.Push(&l.timers, t)
	l.timerIndex[id] = t
	l.timerMu.Unlock()

	l.Wake()

	return id, nil
}

// CancelTimer removes a scheduled timer. Returns [ErrTimerNotFound] if the
// timer already fired or was already cancelled.
func (l *Loop) CancelTimer(id TimerID) error {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()
	t, ok := l.timerIndex[id]
	if !ok {
		return ErrTimerNotFound
	}
	heap.Remove(&l.timers, t.index)
	delete(l.timerIndex, id)
	return nil
}

// Wake wakes the loop if it is sleeping. Safe to call from any goroutine.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// HasPendingEvents reports whether there are queued tasks, or expired timers,
// waiting to be dispatched.
func (l *Loop) HasPendingEvents() bool {
	l.queueMu.Lock()
	pending := len(l.queue) != 0
	l.queueMu.Unlock()
	if pending {
		return true
	}
	delay, ok := l.nextTimerDelay()
	return ok && delay <= 0
}

// Done returns a channel that is closed once the loop has terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// State returns the current state of the loop.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// CurrentTickTime returns the time at which the current (or most recent) tick
// started.
func (l *Loop) CurrentTickTime() time.Time {
	return l.tickAnchor.Add(time.Duration(l.tickElapsed.Load()))
}

// InLoop reports whether the caller is running on the loop goroutine.
func (l *Loop) InLoop() bool {
	id := l.loopGoroutineID.Load()
	if id == 0 {
		return false
	}
	return getGoroutineID() == id
}

// NewTimer is an alias of the package function of the same name.
func (l *Loop) NewTimer() *Timer {
	return NewTimer(l)
}

// safeExecute executes a task with panic recovery.
func (l *Loop) safeExecute(task func()) {
	if task == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Err().
				Any(`panic`, r).
				Log(`task panicked`)
		}
	}()

	task()
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
