// Package render advances the continuous scene motion once per frame and
// hands the result to a Renderer.
package render

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/satindergrewal/harmonia/internal/choreo"
	"github.com/satindergrewal/harmonia/internal/engine"
	"github.com/satindergrewal/harmonia/internal/scene"
)

// Per-frame increments. They are tuned per frame, not per second.
const (
	SparkTimeStep    = 0.016
	MaterialTimeStep = 0.01
	SkyboxSpin       = 0.0001
	OrbitStep        = 0.003
	OrbitRadius      = 0.5
	FieldSpin        = 0.0005
	IdleSpin         = 0.002
	// FullTurns is how many times the planet turns over one playthrough.
	FullTurns = 2
)

// Phases exposes the choreographer's state.
type Phases interface {
	Phase() choreo.Phase
	Transitioning() bool
}

// AudioClock is the device clock in seconds.
type AudioClock interface {
	Now() float64
}

// Frame is what one render pass saw.
type Frame struct {
	Seq           uint64
	Delta         time.Duration
	Phase         choreo.Phase
	Transitioning bool
	Position      float64
	Duration      float64
	Playing       bool
	Scene         *scene.Scene
}

// Renderer draws a frame. Draw runs on the event loop and must not block.
type Renderer interface {
	Draw(f Frame)
}

// Loop is the per-frame callback. Register Frame with engine.Loop.OnFrame
// after the tween manager so transitions settle before steady motion runs.
type Loop struct {
	scene    *scene.Scene
	phases   Phases
	timing   *engine.TimingState
	clock    AudioClock
	renderer Renderer
	seq      uint64
}

// New creates a render loop. renderer may be nil.
func New(sc *scene.Scene, phases Phases, timing *engine.TimingState, clock AudioClock, renderer Renderer) *Loop {
	return &Loop{scene: sc, phases: phases, timing: timing, clock: clock, renderer: renderer}
}

// Frame advances continuous motion by one frame.
func (l *Loop) Frame(dt time.Duration) {
	l.seq++
	sc := l.scene
	phase, moving := l.phases.Phase(), l.phases.Transitioning()
	pos := l.timing.Position(l.clock.Now())

	if sp := sc.Spark; sp != nil {
		sp.Time += SparkTimeStep
	}
	if f := sc.Focal; f != nil {
		f.Material.Time += MaterialTimeStep
	}
	if f := sc.Field; f != nil {
		f.SkyboxRotationY += SkyboxSpin
	}

	if !moving {
		switch phase {
		case choreo.Focused:
			l.orbit()
		case choreo.Idle:
			if f := sc.Field; f != nil {
				f.PointsRotationY += FieldSpin
				f.AxesRotationY += FieldSpin
			}
		}
		l.spin(phase, pos)
	}

	if l.renderer != nil {
		l.renderer.Draw(Frame{
			Seq:           l.seq,
			Delta:         dt,
			Phase:         phase,
			Transitioning: moving,
			Position:      pos,
			Duration:      l.timing.Duration,
			Playing:       l.timing.Playing,
			Scene:         sc,
		})
	}
}

// orbit circles the camera around the focal object at a fixed radius.
func (l *Loop) orbit() {
	cam, focal := l.scene.Camera, l.scene.Focal
	if cam == nil || focal == nil || !focal.Visible {
		return
	}
	cam.OrbitAngle += OrbitStep
	p := focal.Position
	cam.Position = mgl64.Vec3{
		p.X() + OrbitRadius*math.Cos(cam.OrbitAngle),
		p.Y(),
		p.Z() + OrbitRadius*math.Sin(cam.OrbitAngle),
	}
	cam.LookAt(p)
}

// spin ties the planet's rotation to the playback position while focused on
// a loaded track, so it does not drift with frame rate. Otherwise it turns
// slowly on its own.
func (l *Loop) spin(phase choreo.Phase, pos float64) {
	focal := l.scene.Focal
	if focal == nil {
		return
	}
	if phase == choreo.Focused && l.timing.Features != nil && l.timing.Duration > 0 {
		focal.SpinY = pos / l.timing.Duration * FullTurns * 2 * math.Pi
		return
	}
	focal.SpinY += IdleSpin
}
