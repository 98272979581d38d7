// Package choreo runs the camera and material state machine that reveals,
// focuses on and releases the planet standing for an analysed track.
package choreo

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/satindergrewal/harmonia/internal/analysis"
	"github.com/satindergrewal/harmonia/internal/engine"
	"github.com/satindergrewal/harmonia/internal/scene"
	"github.com/satindergrewal/harmonia/internal/tween"
)

// Phase is the animation phase.
type Phase int

const (
	Idle Phase = iota
	Revealing
	Focused
	Unfocusing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Revealing:
		return "revealing"
	case Focused:
		return "focused"
	case Unfocusing:
		return "unfocusing"
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Config holds the choreography timings.
type Config struct {
	RevealDelay    time.Duration
	ZoomDuration   time.Duration
	ReturnDuration time.Duration
	FocusOffset    mgl64.Vec3

	SparkGrowth time.Duration
	SparkLinger time.Duration
	SparkScale  float64

	ColorDuration     time.Duration
	IntensityDuration time.Duration
	SpeedDuration     time.Duration
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		RevealDelay:    1200 * time.Millisecond,
		ZoomDuration:   2500 * time.Millisecond,
		ReturnDuration: 2000 * time.Millisecond,
		FocusOffset:    mgl64.Vec3{0, 0, 0.5},

		SparkGrowth: 700 * time.Millisecond,
		SparkLinger: 100 * time.Millisecond,
		SparkScale:  1.5,

		ColorDuration:     500 * time.Millisecond,
		IntensityDuration: 1000 * time.Millisecond,
		SpeedDuration:     800 * time.Millisecond,
	}
}

// Choreographer owns scene objects while a transition runs. All methods must
// run on the event loop, and tw must be advanced by a frame hook on it.
type Choreographer struct {
	loop  *engine.Loop
	tw    *tween.Manager
	scene *scene.Scene
	cfg   Config

	phase         Phase
	transitioning bool
	appState      engine.AppState
	record        *analysis.FeatureRecord

	reveal      *engine.Task
	sparkExpiry *engine.Task
	spark       *tween.Tween
	camera      *tween.Tween
	uniforms    []*tween.Tween
}

// New creates a choreographer in Idle.
func New(loop *engine.Loop, tw *tween.Manager, sc *scene.Scene, cfg Config) *Choreographer {
	return &Choreographer{loop: loop, tw: tw, scene: sc, cfg: cfg, appState: engine.AppIdle}
}

// Phase is the current phase.
func (c *Choreographer) Phase() Phase { return c.phase }

// Transitioning reports whether a camera tween owns the scene.
func (c *Choreographer) Transitioning() bool { return c.transitioning }

// Update is the single transition entry point. It records the inputs and
// re-evaluates; call it whenever the app state or record changes.
func (c *Choreographer) Update(state engine.AppState, rec *analysis.FeatureRecord) {
	c.appState, c.record = state, rec
	c.evaluate()
}

func (c *Choreographer) evaluate() {
	showing := c.appState == engine.AppResultsShown && c.record != nil
	visible := c.focalShown()

	// a new evaluation supersedes any pending reveal
	c.reveal.Cancel()
	c.reveal = nil

	switch {
	case showing && !visible && !c.transitioning:
		c.beginReveal(c.record)
	case !showing && c.phase == Revealing:
		c.clearSpark()
		c.phase = Idle
	case !showing && visible && !c.transitioning:
		c.beginUnfocus()
	}
	// Anything else waits for the running transition, whose completion
	// evaluates again.
}

// focalShown reports whether the planet is on screen. A scene without one
// counts as shown once focused.
func (c *Choreographer) focalShown() bool {
	if f := c.scene.Focal; f != nil {
		return f.Visible
	}
	return c.phase == Focused
}

func (c *Choreographer) beginReveal(rec *analysis.FeatureRecord) {
	c.phase = Revealing
	c.spawnSpark(rec.TargetPosition)
	c.reveal = c.loop.After(c.cfg.RevealDelay, func() {
		c.reveal = nil
		c.beginFocus(rec)
	})
}

func (c *Choreographer) beginFocus(rec *analysis.FeatureRecord) {
	c.phase = Focused
	c.transitioning = true

	cam, focal := c.scene.Camera, c.scene.Focal
	if focal != nil {
		focal.Position = rec.TargetPosition
	}
	show := func() {
		if focal != nil {
			focal.Visible = true
		}
		if f := c.scene.Field; f != nil {
			f.AxesVisible = false
		}
	}
	if cam == nil {
		show()
		c.focusComplete(rec)
		return
	}

	from := cam.Position
	to := rec.TargetPosition.Add(c.cfg.FocusOffset)
	c.camera = c.tw.To(c.cfg.ZoomDuration, tween.Power2InOut,
		func(p float64) { cam.Position = scene.Lerp(from, to, p) },
		tween.OnStart(show),
		tween.OnComplete(func() { c.focusComplete(rec) }),
	)
}

func (c *Choreographer) focusComplete(rec *analysis.FeatureRecord) {
	c.camera = nil
	c.transitioning = false
	if cam := c.scene.Camera; cam != nil {
		cam.LookAt(rec.TargetPosition)
		d := cam.Position.Sub(rec.TargetPosition)
		cam.OrbitAngle = math.Atan2(d.Z(), d.X())
	}
	if focal := c.scene.Focal; focal != nil {
		c.tweenMaterial(&focal.Material, rec)
	}
	c.evaluate()
}

// tweenMaterial moves the shader uniforms to the record's look.
func (c *Choreographer) tweenMaterial(m *scene.Material, rec *analysis.FeatureRecord) {
	c.cancelUniforms()

	col := colorful.Hsl(rec.ColorHue, 1, 0.7)
	color := mgl64.Vec3{col.R, col.G, col.B}
	intensity := 0.2 + rec.Energy*0.8
	speed := math.Max(0.1, math.Min(0.1+(float64(rec.BPM)-60)/120*0.9, 1))

	fromColor, fromIntensity, fromSpeed := m.EffectColor, m.Intensity, m.Speed
	c.uniforms = append(c.uniforms,
		c.tw.To(c.cfg.ColorDuration, tween.Power1Out, func(p float64) {
			m.EffectColor = scene.Lerp(fromColor, color, p)
		}),
		c.tw.To(c.cfg.IntensityDuration, tween.Power1InOut, func(p float64) {
			m.Intensity = lerp(fromIntensity, intensity, p)
		}),
		c.tw.To(c.cfg.SpeedDuration, tween.Power1InOut, func(p float64) {
			m.Speed = lerp(fromSpeed, speed, p)
		}),
	)
}

func (c *Choreographer) beginUnfocus() {
	c.phase = Unfocusing
	c.transitioning = true
	c.cancelUniforms()

	cam := c.scene.Camera
	if cam == nil {
		if focal := c.scene.Focal; focal != nil {
			focal.Visible = false
		}
		c.unfocusComplete()
		return
	}

	from := cam.Position
	c.camera = c.tw.To(c.cfg.ReturnDuration, tween.Power2InOut,
		func(p float64) {
			cam.Position = scene.Lerp(from, scene.HomePosition, p)
			cam.LookAt(scene.HomeTarget)
		},
		tween.OnStart(func() {
			if focal := c.scene.Focal; focal != nil {
				focal.Visible = false
			}
		}),
		tween.OnComplete(c.unfocusComplete),
	)
}

func (c *Choreographer) unfocusComplete() {
	c.camera = nil
	if cam := c.scene.Camera; cam != nil {
		cam.Position = scene.HomePosition
		cam.LookAt(scene.HomeTarget)
		cam.OrbitAngle = 0
	}
	if f := c.scene.Field; f != nil {
		f.AxesVisible = true
		f.PointsVisible = true
	}
	if focal := c.scene.Focal; focal != nil {
		focal.Material = scene.DefaultMaterial()
	}
	c.transitioning = false
	c.phase = Idle
	c.evaluate()
}

func (c *Choreographer) spawnSpark(at mgl64.Vec3) {
	c.clearSpark()
	sp := &scene.Spark{Position: at, Scale: 1}
	c.scene.Spark = sp
	grow := c.cfg.SparkScale - 1
	c.spark = c.tw.To(c.cfg.SparkGrowth, tween.Power2Out,
		func(p float64) { sp.Scale = 1 + grow*p },
		tween.OnComplete(func() {
			c.spark = nil
			c.sparkExpiry = c.loop.After(c.cfg.SparkLinger, func() {
				c.sparkExpiry = nil
				if c.scene.Spark == sp {
					c.scene.Spark = nil
				}
			})
		}),
	)
}

func (c *Choreographer) clearSpark() {
	c.spark.Cancel()
	c.spark = nil
	c.sparkExpiry.Cancel()
	c.sparkExpiry = nil
	c.scene.Spark = nil
}

func (c *Choreographer) cancelUniforms() {
	for _, t := range c.uniforms {
		t.Cancel()
	}
	c.uniforms = nil
}

func lerp(a, b, t float64) float64 {
	if t >= 1 {
		return b
	}
	return a + (b-a)*t
}
