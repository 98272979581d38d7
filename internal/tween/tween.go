// Package tween runs eased, cancellable property animations on frame time.
package tween

import (
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Easing curves by their power.
var (
	Linear      = ease.Linear
	Power1Out   = ease.OutQuad
	Power1InOut = ease.InOutQuad
	Power2Out   = ease.OutCubic
	Power2InOut = ease.InOutCubic
)

// Tween drives one property from progress 0 to 1.
type Tween struct {
	tw         *gween.Tween
	apply      func(p float64)
	onComplete func()
	done       bool
}

// Cancel stops the tween where it is. OnComplete will not run. Nil is fine.
func (t *Tween) Cancel() {
	if t != nil {
		t.done = true
	}
}

// Active reports whether the tween is still running.
func (t *Tween) Active() bool {
	return t != nil && !t.done
}

// Option configures a tween.
type Option func(*options)

type options struct {
	onStart    func()
	onComplete func()
}

// OnStart runs synchronously when the tween is created.
func OnStart(fn func()) Option { return func(o *options) { o.onStart = fn } }

// OnComplete runs after the final update.
func OnComplete(fn func()) Option { return func(o *options) { o.onComplete = fn } }

// Manager advances a set of tweens. It is not safe for concurrent use; the
// event loop owns it.
type Manager struct {
	active []*Tween
}

// NewManager returns an empty manager.
func NewManager() *Manager { return &Manager{} }

// To starts a tween over d. apply receives the eased progress each frame,
// ending with exactly 1. A non-positive duration completes at once.
func (m *Manager) To(d time.Duration, easing ease.TweenFunc, apply func(p float64), opts ...Option) *Tween {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	t := &Tween{
		tw:         gween.New(0, 1, float32(d.Seconds()), easing),
		apply:      apply,
		onComplete: o.onComplete,
	}
	if o.onStart != nil {
		o.onStart()
	}
	if d <= 0 {
		t.finish()
		return t
	}
	m.active = append(m.active, t)
	return t
}

// Advance moves every running tween forward by dt. Callbacks may start or
// cancel tweens.
func (m *Manager) Advance(dt time.Duration) {
	running := append([]*Tween(nil), m.active...)
	for _, t := range running {
		if t.done {
			continue
		}
		p, finished := t.tw.Update(float32(dt.Seconds()))
		if finished {
			t.finish()
			continue
		}
		t.apply(float64(p))
	}

	kept := m.active[:0]
	for _, t := range m.active {
		if !t.done {
			kept = append(kept, t)
		}
	}
	clear(m.active[len(kept):])
	m.active = kept
}

// Len is the number of running tweens.
func (m *Manager) Len() int {
	n := 0
	for _, t := range m.active {
		if !t.done {
			n++
		}
	}
	return n
}

func (t *Tween) finish() {
	t.done = true
	t.apply(1)
	if t.onComplete != nil {
		t.onComplete()
	}
}
