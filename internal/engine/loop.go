package engine

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Loop is a single-threaded cooperative scheduler. Posted callbacks, timers
// and frame hooks all run on the goroutine that calls Run (or Advance in
// tests), so state owned by loop callbacks needs no locking.
type Loop struct {
	clock         Clock
	frameInterval time.Duration

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	// owned by the loop goroutine
	timers    taskHeap
	seq       uint64
	frames    []func(dt time.Duration)
	lastFrame time.Time
	nextFrame time.Time
}

// Task is a scheduled callback. Cancel and Pending must be called on the loop.
type Task struct {
	loop     *Loop
	when     time.Time
	interval time.Duration
	fn       func()
	seq      uint64
	index    int
}

// NewLoop creates a loop that fires frame hooks every frameInterval.
func NewLoop(clock Clock, frameInterval time.Duration) *Loop {
	if clock == nil {
		clock = SystemClock{}
	}
	if frameInterval <= 0 {
		frameInterval = time.Second / 60
	}
	return &Loop{
		clock:         clock,
		frameInterval: frameInterval,
		wake:          make(chan struct{}, 1),
	}
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post queues fn to run on the loop. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After schedules fn to run once after d.
func (l *Loop) After(d time.Duration, fn func()) *Task {
	return l.schedule(d, 0, fn)
}

// Every schedules fn to run every d until the task is cancelled.
func (l *Loop) Every(d time.Duration, fn func()) *Task {
	if d <= 0 {
		panic("engine: non-positive interval")
	}
	return l.schedule(d, d, fn)
}

// OnFrame registers a per-frame hook. Hooks run in registration order.
func (l *Loop) OnFrame(fn func(dt time.Duration)) {
	if len(l.frames) == 0 {
		l.lastFrame = l.clock.Now()
		l.nextFrame = l.lastFrame.Add(l.frameInterval)
	}
	l.frames = append(l.frames, fn)
}

func (l *Loop) schedule(d, interval time.Duration, fn func()) *Task {
	if d < 0 {
		d = 0
	}
	l.seq++
	t := &Task{
		loop:     l,
		when:     l.clock.Now().Add(d),
		interval: interval,
		fn:       fn,
		seq:      l.seq,
		index:    -1,
	}
	heap.Push(&l.timers, t)
	return t
}

// Cancel removes the task. Nil and already-fired tasks are fine.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	if t.index >= 0 {
		heap.Remove(&t.loop.timers, t.index)
	}
	t.interval = 0
}

// Pending reports whether the task will still fire.
func (t *Task) Pending() bool {
	return t != nil && t.index >= 0
}

// Run processes callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		now := l.clock.Now()
		l.step(now)

		wait := time.Hour
		if next, ok := l.nextDeadline(); ok {
			wait = next.Sub(l.clock.Now())
			if wait < 0 {
				wait = 0
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		case <-timer.C:
		}
	}
}

// Advance moves a ManualClock forward by d, firing everything that comes due
// in deadline order. It runs on the calling goroutine, which then acts as the
// loop. Panics if the loop was built on another clock.
func (l *Loop) Advance(d time.Duration) {
	mc, ok := l.clock.(*ManualClock)
	if !ok {
		panic("engine: Advance needs a ManualClock")
	}
	target := mc.Now().Add(d)
	for {
		l.drain()
		next, ok := l.nextDeadline()
		if !ok || next.After(target) {
			break
		}
		mc.Set(next)
		l.step(next)
	}
	mc.Set(target)
	l.step(target)
}

func (l *Loop) step(now time.Time) {
	l.drain()

	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*Task)
		if t.interval > 0 {
			t.when = t.when.Add(t.interval)
			if !t.when.After(now) {
				t.when = now.Add(t.interval)
			}
			heap.Push(&l.timers, t)
		}
		t.fn()
		l.drain()
	}

	if len(l.frames) > 0 && !l.nextFrame.After(now) {
		dt := now.Sub(l.lastFrame)
		l.lastFrame = now
		l.nextFrame = l.nextFrame.Add(l.frameInterval)
		if !l.nextFrame.After(now) {
			l.nextFrame = now.Add(l.frameInterval)
		}
		for _, fn := range l.frames {
			fn(dt)
		}
		l.drain()
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		q := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(q) == 0 {
			return
		}
		for _, fn := range q {
			fn()
		}
	}
}

func (l *Loop) nextDeadline() (time.Time, bool) {
	var next time.Time
	ok := false
	if len(l.timers) > 0 {
		next, ok = l.timers[0].when, true
	}
	if len(l.frames) > 0 && (!ok || l.nextFrame.Before(next)) {
		next, ok = l.nextFrame, true
	}
	return next, ok
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
