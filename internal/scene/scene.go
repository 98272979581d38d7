// Package scene holds the 3D objects the engine animates. It has no behavior
// of its own beyond camera math; the choreographer and the render loop are
// the only writers.
package scene

import (
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"
)

// Radius of the ambient field.
const Radius = 20.0

var (
	// Up is world up.
	Up = mgl64.Vec3{0, 1, 0}
	// HomePosition is the idle camera position, looking at the origin.
	HomePosition = mgl64.Vec3{0, 0, Radius * 2.5}
	// HomeTarget is the point the idle camera looks at.
	HomeTarget = mgl64.Vec3{}
)

// Camera is a perspective camera. Its front is -Z in local space.
type Camera struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	// OrbitAngle is the angle around the focal object in the XZ plane while
	// orbiting, measured with atan2(dz, dx).
	OrbitAngle float64
}

// NewCamera returns a camera at home looking at the origin.
func NewCamera() *Camera {
	c := &Camera{Position: HomePosition, Orientation: mgl64.QuatIdent()}
	c.LookAt(HomeTarget)
	return c
}

// LookAt turns the camera toward target, keeping world up. A target at the
// camera's own position, or straight above or below it, leaves the
// orientation alone.
func (c *Camera) LookAt(target mgl64.Vec3) {
	d := target.Sub(c.Position)
	if d.Len() < 1e-9 || math.Abs(d.Normalize().Dot(Up)) > 1-1e-9 {
		return
	}
	view := mgl64.LookAtV(c.Position, target, Up)
	c.Orientation = mgl64.Mat4ToQuat(view.Inv()).Normalize()
}

// Forward is the unit view direction.
func (c *Camera) Forward() mgl64.Vec3 {
	return c.Orientation.Rotate(mgl64.Vec3{0, 0, -1})
}

// View is the world-to-camera matrix.
func (c *Camera) View() mgl64.Mat4 {
	f := c.Forward()
	return mgl64.LookAtV(c.Position, c.Position.Add(f), c.Orientation.Rotate(Up))
}

// Material is the focal object's shader state.
type Material struct {
	Time        float64    `json:"time"`
	EffectColor mgl64.Vec3 `json:"effectColor"`
	Intensity   float64    `json:"intensity"`
	Speed       float64    `json:"speed"`
}

// DefaultMaterial is the look before any track is analysed.
func DefaultMaterial() Material {
	return Material{EffectColor: mgl64.Vec3{1, 1, 1}, Intensity: 0.5, Speed: 0.5}
}

// FocalMesh is the planet that stands for the analysed track.
type FocalMesh struct {
	Position mgl64.Vec3
	Visible  bool
	SpinY    float64
	Material Material
}

// AmbientField is the point cloud, axes and skybox around the origin.
type AmbientField struct {
	PointCount      int
	PointSeed       uint64
	PointsVisible   bool
	AxesVisible     bool
	PointsRotationY float64
	AxesRotationY   float64
	SkyboxRotationY float64
}

// Points regenerates the field's point cloud: uniform in a ball of Radius.
func (f *AmbientField) Points() []mgl64.Vec3 {
	rng := rand.New(rand.NewPCG(f.PointSeed, f.PointSeed^0x9e3779b97f4a7c15))
	pts := make([]mgl64.Vec3, f.PointCount)
	for i := range pts {
		r := Radius * math.Cbrt(rng.Float64())
		theta := rng.Float64() * 2 * math.Pi
		phi := math.Acos(2*rng.Float64() - 1)
		pts[i] = mgl64.Vec3{
			r * math.Sin(phi) * math.Cos(theta),
			r * math.Sin(phi) * math.Sin(theta),
			r * math.Cos(phi),
		}
	}
	return pts
}

// Spark is the short-lived burst marking where the planet will appear.
type Spark struct {
	Position mgl64.Vec3
	Scale    float64
	Time     float64
}

// Scene is every animated object. Any of them may be nil; writers skip
// missing objects.
type Scene struct {
	Camera *Camera
	Focal  *FocalMesh
	Field  *AmbientField
	Spark  *Spark
}

// New builds the idle scene.
func New(pointCount int, seed uint64) *Scene {
	return &Scene{
		Camera: NewCamera(),
		Focal:  &FocalMesh{Material: DefaultMaterial()},
		Field: &AmbientField{
			PointCount:    pointCount,
			PointSeed:     seed,
			PointsVisible: true,
			AxesVisible:   true,
		},
	}
}

// Lerp interpolates a to b, returning b exactly at t >= 1.
func Lerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return a.Add(b.Sub(a).Mul(t))
}
