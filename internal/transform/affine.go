package transform

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/ecopia-map/octiler/internal/geometry"
)

// Affine applies a fixed 4x4 transform matrix, used for the Z-offset and
// scale adjustments Config.ZOffset and similar knobs need without paying
// for a full PROJ.4 round trip.
type Affine struct {
	Matrix mgl64.Mat4
}

// NewTranslation returns an Affine that only translates.
func NewTranslation(dx, dy, dz float64) Affine {
	return Affine{Matrix: mgl64.Translate3D(dx, dy, dz)}
}

// Apply implements Transform.
func (a Affine) Apply(p geometry.Vec3) (geometry.Vec3, error) {
	v := a.Matrix.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return geometry.Vec3{X: v.X(), Y: v.Y(), Z: v.Z()}, nil
}
