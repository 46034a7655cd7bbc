package geometry

import "math"

// Vec3 is a 3D double precision coordinate, used both for source and output
// point positions and for bounding box corners.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// MaxNorm returns the Chebyshev distance between v and o, used by the grid
// sampler's minimum-separation invariant.
func (v Vec3) MaxNorm(o Vec3) float64 {
	dx := math.Abs(v.X - o.X)
	dy := math.Abs(v.Y - o.Y)
	dz := math.Abs(v.Z - o.Z)
	return math.Max(dx, math.Max(dy, dz))
}
