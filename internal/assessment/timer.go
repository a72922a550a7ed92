package assessment

import (
	"sync"
	"time"
)

// TimerState enumerates countdown states.
type TimerState string

const (
	TimerStopped TimerState = "STOPPED"
	TimerRunning TimerState = "RUNNING"
	TimerExpired TimerState = "EXPIRED"
)

// Countdown is the clock a session runs against.
type Countdown interface {
	Start(seconds int)
	Stop()
	Reset(seconds int)
	Remaining() int
	State() TimerState
}

// CountdownFactory builds a Countdown wired to the owner's callbacks.
type CountdownFactory func(onExpire func(), onTick func(remaining int)) Countdown

// TickSource delivers ticks until stopped.
type TickSource interface {
	C() <-chan time.Time
	Stop()
}

type tickerSource struct{ t *time.Ticker }

func (s tickerSource) C() <-chan time.Time { return s.t.C }
func (s tickerSource) Stop()               { s.t.Stop() }

// NewTickerSource is the default TickSource backed by time.Ticker.
func NewTickerSource(interval time.Duration) TickSource {
	return tickerSource{t: time.NewTicker(interval)}
}

// Timer counts whole seconds down to zero and fires onExpire exactly once
// per run. Only one tick source is active per Timer at any time.
type Timer struct {
	mu        sync.Mutex
	remaining int
	state     TimerState
	gen       uint64
	src       TickSource
	done      chan struct{}

	interval  time.Duration
	newSource func(time.Duration) TickSource
	onExpire  func()
	onTick    func(remaining int)
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithInterval overrides the one-second tick interval.
func WithInterval(d time.Duration) TimerOption {
	return func(t *Timer) { t.interval = d }
}

// WithTickSource replaces the tick source constructor.
func WithTickSource(fn func(time.Duration) TickSource) TimerOption {
	return func(t *Timer) { t.newSource = fn }
}

// WithManualTicks disables the background tick source; the owner drives the
// timer by calling Tick.
func WithManualTicks() TimerOption {
	return func(t *Timer) { t.newSource = nil }
}

// WithOnTick registers a callback invoked after every decrement.
func WithOnTick(fn func(remaining int)) TimerOption {
	return func(t *Timer) { t.onTick = fn }
}

// NewTimer creates a stopped timer.
func NewTimer(onExpire func(), opts ...TimerOption) *Timer {
	t := &Timer{
		state:     TimerStopped,
		interval:  time.Second,
		newSource: NewTickerSource,
		onExpire:  onExpire,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// DefaultCountdownFactory builds real-time timers.
func DefaultCountdownFactory(opts ...TimerOption) CountdownFactory {
	return func(onExpire func(), onTick func(int)) Countdown {
		return NewTimer(onExpire, append([]TimerOption{WithOnTick(onTick)}, opts...)...)
	}
}

// Start sets the remaining seconds and begins ticking. A non-positive value
// fires the expiry callback immediately without entering RUNNING.
func (t *Timer) Start(seconds int) {
	t.mu.Lock()
	t.cancelLocked()
	t.gen++

	if seconds <= 0 {
		t.remaining = 0
		t.state = TimerExpired
		cb := t.onExpire
		t.mu.Unlock()
		if cb != nil {
			cb()
		}
		return
	}

	t.remaining = seconds
	t.state = TimerRunning
	if t.newSource != nil {
		src := t.newSource(t.interval)
		done := make(chan struct{})
		t.src, t.done = src, done
		go t.run(t.gen, src, done)
	}
	t.mu.Unlock()
}

// Stop halts ticking without firing expiry.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerRunning {
		return
	}
	t.cancelLocked()
	t.gen++
	t.state = TimerStopped
}

// Reset returns the timer to STOPPED with a new remaining value.
func (t *Timer) Reset(seconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.gen++
	if seconds < 0 {
		seconds = 0
	}
	t.remaining = seconds
	t.state = TimerStopped
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// State returns the current timer state.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Tick advances the running timer by one step and returns the seconds left.
// It is a no-op unless the timer is RUNNING.
func (t *Timer) Tick() int {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()
	t.advance(gen)
	return t.Remaining()
}

func (t *Timer) run(gen uint64, src TickSource, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-src.C():
			if !t.advance(gen) {
				return
			}
		}
	}
}

// advance decrements the timer if gen still names the active run. It
// reports whether the run continues.
func (t *Timer) advance(gen uint64) bool {
	t.mu.Lock()
	if t.state != TimerRunning || t.gen != gen {
		t.mu.Unlock()
		return false
	}

	t.remaining--
	onTick := t.onTick
	if t.remaining > 0 {
		remaining := t.remaining
		t.mu.Unlock()
		if onTick != nil {
			onTick(remaining)
		}
		return true
	}

	t.remaining = 0
	t.state = TimerExpired
	t.cancelLocked()
	onExpire := t.onExpire
	t.mu.Unlock()

	if onTick != nil {
		onTick(0)
	}
	if onExpire != nil {
		onExpire()
	}
	return false
}

func (t *Timer) cancelLocked() {
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	if t.src != nil {
		t.src.Stop()
		t.src = nil
	}
}
