// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package sigwait

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-uiharness/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func startLoop(t testing.TB) *eventloop.Loop {
	t.Helper()

	loop, err := eventloop.New()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(context.Background()) }()

	t.Cleanup(func() {
		_ = loop.Shutdown(context.Background())
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Error(`timed out waiting for Run to return`)
		}
	})

	return loop
}

// timerRecorder allocates eventloop timers, keeping track of them.
type timerRecorder struct {
	loop   *eventloop.Loop
	timers []*eventloop.Timer
	mu     sync.Mutex
}

func (x *timerRecorder) NewTimer() Timer {
	tm := eventloop.NewTimer(x.loop)
	x.mu.Lock()
	x.timers = append(x.timers, tm)
	x.mu.Unlock()
	return tm
}

func (x *timerRecorder) Timers() []*eventloop.Timer {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]*eventloop.Timer(nil), x.timers...)
}

func newRecordingHelper(t testing.TB) (*Helper, *eventloop.Loop, *timerRecorder) {
	loop := startLoop(t)
	rec := &timerRecorder{loop: loop}
	return New(&Config{Loop: loop, NewTimer: rec.NewTimer}), loop, rec
}

// failingTimer is an eventloop.Timer that refuses to start.
type failingTimer struct {
	*eventloop.Timer
	err error
}

func (x failingTimer) Start(time.Duration) error { return x.err }

// requireCleanedUp asserts that no subscriptions remain, and all timers are
// stopped.
func requireCleanedUp(t testing.TB, source *eventloop.Signal[struct{}], rec *timerRecorder) {
	t.Helper()
	assert.Equal(t, 0, source.ConnectionCount(), `source subscriptions`)
	for _, tm := range rec.Timers() {
		assert.False(t, tm.Active(), `timer active`)
		assert.Equal(t, 0, tm.Timeout().ConnectionCount(), `timer subscriptions`)
	}
}

func TestNew_defaults(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	h := ForLoop(loop, nil)
	assert.Equal(t, DefaultTimeout, h.Timeout())
	assert.Equal(t, time.Second, h.Timeout())

	h = ForLoop(loop, &Config{Timeout: 5 * time.Millisecond})
	assert.Equal(t, 5*time.Millisecond, h.Timeout())
}

func TestNew_panics(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	assert.PanicsWithValue(t, `sigwait: nil loop`, func() { New(nil) })
	assert.PanicsWithValue(t, `sigwait: nil loop`, func() { New(&Config{}) })
	assert.PanicsWithValue(t, `sigwait: nil timer factory`, func() { New(&Config{Loop: loop}) })
	assert.PanicsWithValue(t, `sigwait: nil loop`, func() { ForLoop(nil, nil) })
	assert.PanicsWithValue(t, `sigwait: negative timeout`, func() { ForLoop(loop, &Config{Timeout: -1}) })
}

func TestHelper_WaitTimeout_eventFires(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = source.Post(struct{}{})
	}()

	start := time.Now()
	fired, err := h.WaitTimeout(context.Background(), source, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, fired)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Less(t, elapsed, 100*time.Millisecond)
	assert.Len(t, rec.Timers(), 1)
	requireCleanedUp(t, source, rec)
}

func TestHelper_WaitTimeout_timesOut(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	start := time.Now()
	fired, err := h.WaitTimeout(context.Background(), source, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, fired)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	requireCleanedUp(t, source, rec)
}

func TestHelper_WaitTimeout_zero(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	start := time.Now()
	fired, err := h.WaitTimeout(context.Background(), source, 0)

	require.NoError(t, err)
	assert.False(t, fired)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	requireCleanedUp(t, source, rec)
}

func TestHelper_Wait_defaultTimeout(t *testing.T) {
	loop := startLoop(t)
	h := ForLoop(loop, &Config{Timeout: 20 * time.Millisecond})
	source := eventloop.NewSignal[struct{}](loop)

	start := time.Now()
	fired, err := h.Wait(context.Background(), source)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWait(t *testing.T) {
	loop := startLoop(t)
	source := eventloop.NewSignal[struct{}](loop)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = source.Post(struct{}{})
	}()

	fired, err := Wait(context.Background(), loop, source, time.Second)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, 0, source.ConnectionCount())
}

func TestHelper_WaitTimeout_noEffectAfterReturn(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	var calls int
	_, err := source.Subscribe(func() { calls++ })
	require.NoError(t, err)

	fired, err := h.WaitTimeout(context.Background(), source, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, fired)

	// late emissions reach only the unrelated subscriber
	for i := 0; i < 3; i++ {
		require.NoError(t, source.Post(struct{}{}))
	}
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, loop.Do(context.Background(), func() error { return nil }))

	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, source.ConnectionCount())
	for _, tm := range rec.Timers() {
		assert.False(t, tm.Active())
		assert.Equal(t, 0, tm.Timeout().ConnectionCount())
	}
}

func TestHelper_WaitTimeout_sequential(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	for i := 0; i < 5; i++ {
		fired, err := h.WaitFor(context.Background(), source, time.Second, func() error {
			return source.Post(struct{}{})
		})
		require.NoError(t, err)
		assert.True(t, fired)
	}

	// a fresh timer per call
	assert.Len(t, rec.Timers(), 5)
	requireCleanedUp(t, source, rec)
}

// TestHelper_tieBreak_eventWins covers the case where the timer expires and
// the target event is dispatched within the same loop tick.
func TestHelper_tieBreak_eventWins(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		emit bool
	}{
		{`event in same tick`, true},
		{`no event`, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h, loop, rec := newRecordingHelper(t)
			source := eventloop.NewSignal[struct{}](loop)

			var p *Pending
			require.NoError(t, loop.Do(context.Background(), func() error {
				var err error
				p, err = h.Arm(context.Background(), source, 0)
				if err != nil {
					return err
				}
				if tc.emit {
					// expires after the wait's timer, in the same tick
					if _, err := loop.ScheduleTimer(0, func() { source.Emit(struct{}{}) }); err != nil {
						return err
					}
				}
				// both deadlines pass before the next tick starts
				time.Sleep(5 * time.Millisecond)
				return nil
			}))

			fired, err := p.Wait(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.emit, fired)
			assert.Equal(t, StateCleanedUp, p.State())
			requireCleanedUp(t, source, rec)
		})
	}
}

func TestHelper_Arm_invalidSource(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)

	_, err := h.WaitTimeout(context.Background(), nil, time.Second)
	assert.ErrorIs(t, err, ErrInvalidSource)

	closed := eventloop.NewSignal[struct{}](loop)
	closed.Close()
	_, err = h.WaitTimeout(context.Background(), closed, time.Second)
	assert.ErrorIs(t, err, ErrInvalidSource)
	assert.ErrorIs(t, err, eventloop.ErrInvalidSource)

	// no timer was ever started
	assert.Empty(t, rec.Timers())
}

// panickingSource is a Source that panics on Subscribe.
type panickingSource struct{}

func (panickingSource) Subscribe(func()) (func() bool, error) { panic(`subscribe exploded`) }

// nilUnsubscribeSource is a Source that returns no way to unsubscribe.
type nilUnsubscribeSource struct{}

func (nilUnsubscribeSource) Subscribe(func()) (func() bool, error) { return nil, nil }

func TestHelper_Arm_subscribePanics(t *testing.T) {
	for _, tc := range [...]struct {
		name   string
		source Source
	}{
		{`typed nil signal`, (*eventloop.Signal[struct{}])(nil)},
		{`panicking source`, panickingSource{}},
		{`nil unsubscribe`, nilUnsubscribeSource{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h, loop, rec := newRecordingHelper(t)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			start := time.Now()
			fired, err := h.WaitTimeout(ctx, tc.source, 50*time.Millisecond)
			assert.False(t, fired)
			assert.ErrorIs(t, err, ErrInvalidSource)
			assert.Less(t, time.Since(start), time.Second)
			assert.Empty(t, rec.Timers())

			// the loop is still dispatching
			require.NoError(t, loop.Do(ctx, func() error { return nil }))
		})
	}
}

func TestHelper_Arm_timerFactoryPanics(t *testing.T) {
	loop := startLoop(t)
	h := New(&Config{
		Loop:     loop,
		NewTimer: func() Timer { panic(`no timers`) },
	})
	source := eventloop.NewSignal[struct{}](loop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fired, err := h.WaitTimeout(ctx, source, 50*time.Millisecond)
	assert.False(t, fired)
	var panicErr eventloop.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, `no timers`, panicErr.Value)
	assert.NotErrorIs(t, err, ErrInvalidSource)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, source.ConnectionCount())
}

func TestHelper_Arm_negativeTimeout(t *testing.T) {
	h, loop, _ := newRecordingHelper(t)
	_, err := h.Arm(context.Background(), eventloop.NewSignal[struct{}](loop), -time.Millisecond)
	assert.ErrorIs(t, err, ErrNegativeTimeout)
}

func TestHelper_Arm_timerStartFailure(t *testing.T) {
	loop := startLoop(t)
	startErr := errors.New(`start failed`)
	var timers []*eventloop.Timer
	h := New(&Config{
		Loop: loop,
		NewTimer: func() Timer {
			tm := eventloop.NewTimer(loop)
			timers = append(timers, tm)
			return failingTimer{Timer: tm, err: startErr}
		},
	})
	source := eventloop.NewSignal[struct{}](loop)

	fired, err := h.WaitTimeout(context.Background(), source, time.Second)
	assert.False(t, fired)
	assert.ErrorIs(t, err, startErr)
	assert.Equal(t, 0, source.ConnectionCount())
	require.Len(t, timers, 1)
	assert.Equal(t, 0, timers[0].Timeout().ConnectionCount())
}

func TestHelper_WaitTimeout_loopTerminated(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	require.NoError(t, loop.Shutdown(context.Background()))

	h := ForLoop(loop, nil)
	_, err = h.WaitTimeout(context.Background(), eventloop.NewSignal[struct{}](loop), time.Second)
	assert.ErrorIs(t, err, eventloop.ErrLoopTerminated)
}

func TestHelper_WaitTimeout_inLoop(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	require.NoError(t, loop.Do(context.Background(), func() error {
		_, err := h.WaitTimeout(context.Background(), source, time.Second)
		assert.ErrorIs(t, err, ErrWaitInLoop)

		// arming is permitted, only blocking is not
		p, err := h.Arm(context.Background(), source, time.Second)
		if err != nil {
			return err
		}
		_, err = p.Wait(context.Background())
		assert.ErrorIs(t, err, ErrWaitInLoop)
		p.Cancel()
		assert.Equal(t, StateCleanedUp, p.State())
		return nil
	}))

	requireCleanedUp(t, source, rec)
}

func TestHelper_WaitTimeout_contextCancelled(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	fired, err := h.WaitTimeout(ctx, source, 10*time.Second)
	assert.False(t, fired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	requireCleanedUp(t, source, rec)
}

func TestHelper_WaitFor_triggerError(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	triggerErr := errors.New(`trigger failed`)
	fired, err := h.WaitFor(context.Background(), source, time.Second, func() error {
		assert.Equal(t, 1, source.ConnectionCount())
		return triggerErr
	})
	assert.False(t, fired)
	assert.ErrorIs(t, err, triggerErr)
	requireCleanedUp(t, source, rec)
}

func TestHelper_WaitFor_triggerPanics(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	assert.PanicsWithValue(t, `trigger panicked`, func() {
		_, _ = h.WaitFor(context.Background(), source, time.Second, func() error {
			panic(`trigger panicked`)
		})
	})
	requireCleanedUp(t, source, rec)
}

func TestPending_Cancel(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	p, err := h.Arm(context.Background(), source, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, p.State())
	assert.Equal(t, 1, source.ConnectionCount())

	p.Cancel()
	p.Cancel()

	select {
	case <-p.Done():
	default:
		t.Fatal(`expected done to be closed`)
	}
	assert.Equal(t, StateCleanedUp, p.State())

	fired, err := p.Wait(context.Background())
	assert.False(t, fired)
	assert.ErrorIs(t, err, ErrCancelled)
	requireCleanedUp(t, source, rec)

	// emitting after cancellation has no effect
	require.NoError(t, source.Post(struct{}{}))
	require.NoError(t, loop.Do(context.Background(), func() error { return nil }))
	fired, err = p.Result()
	assert.False(t, fired)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestPending_Wait_idempotent(t *testing.T) {
	h, loop, _ := newRecordingHelper(t)
	source := eventloop.NewSignal[struct{}](loop)

	p, err := h.Arm(context.Background(), source, time.Second)
	require.NoError(t, err)
	require.NoError(t, source.Post(struct{}{}))

	for i := 0; i < 3; i++ {
		fired, err := p.Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, fired)
	}
	assert.Greater(t, p.Elapsed(), time.Duration(0))

	// a no-op, once complete
	p.Cancel()
	fired, err := p.Result()
	assert.NoError(t, err)
	assert.True(t, fired)
}

func TestPending_Wait_loopStopped(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	go func() { _ = loop.Run(context.Background()) }()

	h := ForLoop(loop, nil)
	source := eventloop.NewSignal[struct{}](loop)

	p, err := h.Arm(context.Background(), source, time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = loop.Shutdown(context.Background())
	}()

	fired, err := p.Wait(context.Background())
	assert.False(t, fired)
	assert.ErrorIs(t, err, ErrLoopStopped)
	assert.Equal(t, StateCleanedUp, p.State())
	assert.Equal(t, 0, source.ConnectionCount())
}

func TestState_String(t *testing.T) {
	for state, expected := range map[State]string{
		StateArming:    `Arming`,
		StateWaiting:   `Waiting`,
		StateSatisfied: `Satisfied`,
		StateCleanedUp: `CleanedUp`,
		State(-1):      `Unknown`,
	} {
		assert.Equal(t, expected, state.String())
	}
}

// TestHelper_WaitTimeout_timeoutProperty checks, for any timeout D >= 0, that
// without an event the wait returns false no sooner than D, and cleans up.
func TestHelper_WaitTimeout_timeoutProperty(t *testing.T) {
	h, loop, rec := newRecordingHelper(t)

	rapid.Check(t, func(r *rapid.T) {
		d := time.Duration(rapid.IntRange(0, 15).Draw(r, "timeoutMs")) * time.Millisecond
		source := eventloop.NewSignal[struct{}](loop)

		start := time.Now()
		fired, err := h.WaitTimeout(context.Background(), source, d)
		elapsed := time.Since(start)

		if err != nil {
			r.Fatalf("unexpected error: %v", err)
		}
		if fired {
			r.Fatalf("fired without an event, timeout %s", d)
		}
		if elapsed < d {
			r.Fatalf("returned after %s, before timeout %s", elapsed, d)
		}
		if n := source.ConnectionCount(); n != 0 {
			r.Fatalf("%d source subscriptions remain", n)
		}
		for _, tm := range rec.Timers() {
			if tm.Active() || tm.Timeout().ConnectionCount() != 0 {
				r.Fatalf("timer not cleaned up")
			}
		}
	})
}

// TestHelper_WaitFor_eventProperty checks that an event triggered after
// arming is always observed, for any timeout that leaves room to dispatch it.
func TestHelper_WaitFor_eventProperty(t *testing.T) {
	h, loop, _ := newRecordingHelper(t)

	rapid.Check(t, func(r *rapid.T) {
		d := time.Duration(rapid.IntRange(1, 60).Draw(r, "timeoutSec")) * time.Second
		emissions := rapid.IntRange(1, 5).Draw(r, "emissions")
		source := eventloop.NewSignal[struct{}](loop)

		fired, err := h.WaitFor(context.Background(), source, d, func() error {
			for i := 0; i < emissions; i++ {
				if err := source.Post(struct{}{}); err != nil {
					return err
				}
			}
			return nil
		})

		if err != nil {
			r.Fatalf("unexpected error: %v", err)
		}
		if !fired {
			r.Fatalf("event not observed, timeout %s", d)
		}
		if n := source.ConnectionCount(); n != 0 {
			r.Fatalf("%d source subscriptions remain", n)
		}
	})
}
