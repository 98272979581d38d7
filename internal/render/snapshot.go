package render

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Snapshot is a self-contained copy of one frame for remote drawing.
type Snapshot struct {
	Seq           uint64  `json:"seq"`
	Phase         string  `json:"phase"`
	Transitioning bool    `json:"transitioning"`
	Position      float64 `json:"position"`
	Duration      float64 `json:"duration"`
	Playing       bool    `json:"playing"`

	Camera *CameraState `json:"camera,omitempty"`
	Focal  *FocalState  `json:"focal,omitempty"`
	Field  *FieldState  `json:"field,omitempty"`
	Spark  *SparkState  `json:"spark,omitempty"`
}

// CameraState is the camera pose. Orientation is [w, x, y, z].
type CameraState struct {
	Position    mgl64.Vec3 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
	View        mgl64.Mat4 `json:"view"`
}

// FocalState is the planet and its shader uniforms.
type FocalState struct {
	Visible     bool       `json:"visible"`
	Position    mgl64.Vec3 `json:"position"`
	SpinY       float64    `json:"spinY"`
	Time        float64    `json:"time"`
	EffectColor mgl64.Vec3 `json:"effectColor"`
	Intensity   float64    `json:"intensity"`
	Speed       float64    `json:"speed"`
}

// FieldState is the ambient field.
type FieldState struct {
	PointsVisible   bool    `json:"pointsVisible"`
	AxesVisible     bool    `json:"axesVisible"`
	PointsRotationY float64 `json:"pointsRotationY"`
	AxesRotationY   float64 `json:"axesRotationY"`
	SkyboxRotationY float64 `json:"skyboxRotationY"`
}

// SparkState is the reveal burst.
type SparkState struct {
	Position mgl64.Vec3 `json:"position"`
	Scale    float64    `json:"scale"`
	Time     float64    `json:"time"`
}

// Capture copies f into a Snapshot.
func Capture(f Frame) Snapshot {
	s := Snapshot{
		Seq:           f.Seq,
		Phase:         f.Phase.String(),
		Transitioning: f.Transitioning,
		Position:      f.Position,
		Duration:      f.Duration,
		Playing:       f.Playing,
	}
	sc := f.Scene
	if sc == nil {
		return s
	}
	if c := sc.Camera; c != nil {
		q := c.Orientation
		s.Camera = &CameraState{
			Position:    c.Position,
			Orientation: [4]float64{q.W, q.V.X(), q.V.Y(), q.V.Z()},
			View:        c.View(),
		}
	}
	if p := sc.Focal; p != nil {
		s.Focal = &FocalState{
			Visible:     p.Visible,
			Position:    p.Position,
			SpinY:       p.SpinY,
			Time:        p.Material.Time,
			EffectColor: p.Material.EffectColor,
			Intensity:   p.Material.Intensity,
			Speed:       p.Material.Speed,
		}
	}
	if fl := sc.Field; fl != nil {
		s.Field = &FieldState{
			PointsVisible:   fl.PointsVisible,
			AxesVisible:     fl.AxesVisible,
			PointsRotationY: fl.PointsRotationY,
			AxesRotationY:   fl.AxesRotationY,
			SkyboxRotationY: fl.SkyboxRotationY,
		}
	}
	if sp := sc.Spark; sp != nil {
		s.Spark = &SparkState{Position: sp.Position, Scale: sp.Scale, Time: sp.Time}
	}
	return s
}

// Publisher accepts snapshots without blocking.
type Publisher interface {
	Publish(s Snapshot)
}

// SnapshotRenderer publishes at most one snapshot per interval of frame
// time, always including frames where the phase changes.
type SnapshotRenderer struct {
	out       Publisher
	interval  time.Duration
	elapsed   time.Duration
	lastPhase string
	started   bool
}

// NewSnapshotRenderer publishes to out at roughly rate snapshots per second.
// A non-positive rate publishes every frame.
func NewSnapshotRenderer(out Publisher, rate int) *SnapshotRenderer {
	var interval time.Duration
	if rate > 0 {
		interval = time.Second / time.Duration(rate)
	}
	return &SnapshotRenderer{out: out, interval: interval}
}

func (r *SnapshotRenderer) Draw(f Frame) {
	r.elapsed += f.Delta
	phase := f.Phase.String()
	changed := !r.started || phase != r.lastPhase
	if !changed && r.elapsed < r.interval {
		return
	}
	r.started = true
	r.lastPhase = phase
	r.elapsed = 0
	r.out.Publish(Capture(f))
}
