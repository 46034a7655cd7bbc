// Package geometry provides the cubic bounding box and Morton-path addressing
// used to assign points to octree nodes. The octant numbering and cubing
// rules mirror the bounding box handling in the grid_tree package this
// module was grown from.
package geometry

import "math"

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max Vec3
}

// FromPoints computes the tightest AABB enclosing the given points. Returns
// the zero AABB if points is empty.
func FromPoints(points []Vec3) AABB {
	if len(points) == 0 {
		return AABB{}
	}
	box := AABB{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Min.Z = math.Min(box.Min.Z, p.Z)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
		box.Max.Z = math.Max(box.Max.Z, p.Z)
	}
	return box
}

// Extent returns the per-axis size of the box.
func (b AABB) Extent() Vec3 {
	return b.Max.Sub(b.Min)
}

// Mid returns the box's geometric center.
func (b AABB) Mid() Vec3 {
	return Vec3{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// IsCubic reports whether the three extents are equal.
func (b AABB) IsCubic() bool {
	e := b.Extent()
	return e.X == e.Y && e.Y == e.Z
}

// MakeCubic expands the smaller extents of b to match the largest one,
// keeping the box centered on its original midpoint.
func MakeCubic(b AABB) AABB {
	e := b.Extent()
	side := math.Max(e.X, math.Max(e.Y, e.Z))
	mid := b.Mid()
	half := side / 2
	return AABB{
		Min: Vec3{mid.X - half, mid.Y - half, mid.Z - half},
		Max: Vec3{mid.X + half, mid.Y + half, mid.Z + half},
	}
}

// Octant returns the 0..7 index of the child octant containing p, using
// the packed (zyx) bit numbering: bit 0 is set when p.X is on the upper
// half, bit 1 for Y, bit 2 for Z. Points exactly on a midplane take the
// lower (bit unset) octant; a point clamped to the root's max corner is
// pushed into octant 7.
func (b AABB) Octant(p Vec3) uint8 {
	mid := b.Mid()
	var o uint8
	if p.X > mid.X {
		o |= 1
	}
	if p.Y > mid.Y {
		o |= 2
	}
	if p.Z > mid.Z {
		o |= 4
	}
	return o
}

// Child returns the bounding box of the given octant of b.
func (b AABB) Child(octant uint8) AABB {
	mid := b.Mid()
	child := AABB{}
	if octant&1 != 0 {
		child.Min.X, child.Max.X = mid.X, b.Max.X
	} else {
		child.Min.X, child.Max.X = b.Min.X, mid.X
	}
	if octant&2 != 0 {
		child.Min.Y, child.Max.Y = mid.Y, b.Max.Y
	} else {
		child.Min.Y, child.Max.Y = b.Min.Y, mid.Y
	}
	if octant&4 != 0 {
		child.Min.Z, child.Max.Z = mid.Z, b.Max.Z
	} else {
		child.Min.Z, child.Max.Z = b.Min.Z, mid.Z
	}
	return child
}

// Contains reports whether p lies within b, closed on every face
// (min <= p <= max), so a point on a face shared by two neighbouring boxes
// is contained by both; Octant decides which child actually owns it.
func (b AABB) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Diagonal returns the length of the box's space diagonal.
func (b AABB) Diagonal() float64 {
	e := b.Extent()
	return math.Sqrt(e.X*e.X + e.Y*e.Y + e.Z*e.Z)
}

// ChildAABBFromPath walks root's octants following each digit of path
// (alphabet '0'..'7') and returns the resulting AABB. The empty path
// returns root unchanged.
func ChildAABBFromPath(root AABB, path string) AABB {
	box := root
	for i := 0; i < len(path); i++ {
		box = box.Child(uint8(path[i] - '0'))
	}
	return box
}
