package render

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/satindergrewal/harmonia/internal/analysis"
	"github.com/satindergrewal/harmonia/internal/choreo"
	"github.com/satindergrewal/harmonia/internal/engine"
	"github.com/satindergrewal/harmonia/internal/scene"
)

type fakePhases struct {
	phase  choreo.Phase
	moving bool
}

func (f *fakePhases) Phase() choreo.Phase { return f.phase }
func (f *fakePhases) Transitioning() bool { return f.moving }

type fakeClock float64

func (c *fakeClock) Now() float64 { return float64(*c) }

type capture struct{ frames []Frame }

func (c *capture) Draw(f Frame) { c.frames = append(c.frames, f) }

func focusedScene() *scene.Scene {
	sc := scene.New(10, 1)
	target := mgl64.Vec3{-9.6, 9.6, 1}
	sc.Focal.Position = target
	sc.Focal.Visible = true
	sc.Camera.Position = target.Add(mgl64.Vec3{0, 0, 0.5})
	sc.Camera.LookAt(target)
	sc.Camera.OrbitAngle = math.Pi / 2
	return sc
}

func TestOrbitContinuesWithoutJump(t *testing.T) {
	sc := focusedScene()
	start := sc.Camera.Position
	var clock fakeClock
	l := New(sc, &fakePhases{phase: choreo.Focused}, &engine.TimingState{}, &clock, nil)

	l.Frame(16 * time.Millisecond)
	cam := sc.Camera
	if math.Abs(cam.OrbitAngle-(math.Pi/2+OrbitStep)) > 1e-12 {
		t.Errorf("angle = %v", cam.OrbitAngle)
	}
	if d := cam.Position.Sub(start).Len(); d > 0.002 {
		t.Errorf("camera jumped %v on the first orbit frame", d)
	}
	if r := cam.Position.Sub(sc.Focal.Position).Len(); math.Abs(r-OrbitRadius) > 1e-9 {
		t.Errorf("orbit radius = %v", r)
	}
	want := sc.Focal.Position.Sub(cam.Position).Normalize()
	if !cam.Forward().ApproxEqualThreshold(want, 1e-6) {
		t.Errorf("camera not aimed at the planet: %v vs %v", cam.Forward(), want)
	}
}

func TestSpinFollowsPlaybackPosition(t *testing.T) {
	sc := focusedScene()
	clock := fakeClock(100)
	timing := &engine.TimingState{
		Playing:           true,
		Duration:          180,
		PlaybackStartTime: 55,
		Features:          analysis.NewFeatureRecord(analysis.Result{Arousal: 8, Valence: 2}, "a", 0),
	}
	l := New(sc, &fakePhases{phase: choreo.Focused}, timing, &clock, nil)

	// frame pacing must not matter
	for _, dt := range []time.Duration{5 * time.Millisecond, 40 * time.Millisecond, 16 * time.Millisecond} {
		l.Frame(dt)
		if want := 45.0 / 180 * FullTurns * 2 * math.Pi; math.Abs(sc.Focal.SpinY-want) > 1e-9 {
			t.Errorf("dt=%v: spin = %v, want %v", dt, sc.Focal.SpinY, want)
		}
	}

	clock = 300
	l.Frame(16 * time.Millisecond)
	if want := FullTurns * 2 * math.Pi; math.Abs(sc.Focal.SpinY-want) > 1e-9 {
		t.Errorf("spin past the end = %v, want %v", sc.Focal.SpinY, want)
	}
}

func TestIdleMotion(t *testing.T) {
	sc := scene.New(10, 1)
	var clock fakeClock
	l := New(sc, &fakePhases{phase: choreo.Idle}, &engine.TimingState{}, &clock, nil)
	cam := sc.Camera.Position

	for i := 0; i < 10; i++ {
		l.Frame(16 * time.Millisecond)
	}
	f := sc.Field
	if math.Abs(f.PointsRotationY-10*FieldSpin) > 1e-12 || math.Abs(f.AxesRotationY-10*FieldSpin) > 1e-12 {
		t.Errorf("field rotation = %v/%v", f.PointsRotationY, f.AxesRotationY)
	}
	if math.Abs(f.SkyboxRotationY-10*SkyboxSpin) > 1e-12 {
		t.Errorf("skybox = %v", f.SkyboxRotationY)
	}
	if math.Abs(sc.Focal.SpinY-10*IdleSpin) > 1e-12 {
		t.Errorf("idle spin = %v", sc.Focal.SpinY)
	}
	if sc.Camera.Position != cam {
		t.Error("idle frames moved the camera")
	}
}

func TestTransitionOwnsTheScene(t *testing.T) {
	sc := focusedScene()
	sc.Spark = &scene.Spark{Scale: 1}
	cam := *sc.Camera
	var clock fakeClock
	l := New(sc, &fakePhases{phase: choreo.Focused, moving: true}, &engine.TimingState{}, &clock, nil)

	l.Frame(16 * time.Millisecond)
	if *sc.Camera != cam {
		t.Error("render loop moved the camera during a transition")
	}
	if sc.Focal.SpinY != 0 || sc.Field.PointsRotationY != 0 {
		t.Error("steady motion ran during a transition")
	}
	if sc.Spark.Time != SparkTimeStep || sc.Focal.Material.Time != MaterialTimeStep {
		t.Errorf("clocks did not advance: spark %v material %v", sc.Spark.Time, sc.Focal.Material.Time)
	}
}

func TestMissingObjects(t *testing.T) {
	var clock fakeClock
	c := &capture{}
	l := New(&scene.Scene{}, &fakePhases{phase: choreo.Focused}, &engine.TimingState{}, &clock, c)
	l.Frame(time.Millisecond)
	l.Frame(time.Millisecond)
	if len(c.frames) != 2 || c.frames[1].Seq != 2 {
		t.Errorf("frames = %+v", c.frames)
	}
	snap := Capture(c.frames[0])
	if snap.Camera != nil || snap.Focal != nil {
		t.Error("snapshot invented objects")
	}
}

type collector struct{ got []Snapshot }

func (c *collector) Publish(s Snapshot) { c.got = append(c.got, s) }

func TestSnapshotRendererThrottles(t *testing.T) {
	out := &collector{}
	r := NewSnapshotRenderer(out, 30)
	for i := 0; i < 10; i++ {
		r.Draw(Frame{Seq: uint64(i + 1), Delta: 16 * time.Millisecond, Phase: choreo.Idle})
	}
	if len(out.got) != 4 {
		t.Errorf("published %d snapshots, want 4", len(out.got))
	}

	r.Draw(Frame{Seq: 11, Delta: time.Millisecond, Phase: choreo.Revealing})
	if last := out.got[len(out.got)-1]; last.Seq != 11 || last.Phase != "revealing" {
		t.Errorf("phase change not published immediately: %+v", last)
	}
}

func TestCaptureJSON(t *testing.T) {
	sc := focusedScene()
	sc.Spark = &scene.Spark{Position: mgl64.Vec3{1, 2, 3}, Scale: 1.2}
	snap := Capture(Frame{Seq: 3, Phase: choreo.Focused, Position: 12, Duration: 180, Scene: sc})

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back["phase"] != "focused" {
		t.Errorf("phase = %v", back["phase"])
	}
	focal := back["focal"].(map[string]any)
	pos := focal["position"].([]any)
	if len(pos) != 3 || pos[0].(float64) != -9.6 {
		t.Errorf("focal position = %v", pos)
	}
	cam := back["camera"].(map[string]any)
	if len(cam["view"].([]any)) != 16 || len(cam["orientation"].([]any)) != 4 {
		t.Errorf("camera = %v", cam)
	}
	if back["spark"] == nil {
		t.Error("spark missing")
	}
}
