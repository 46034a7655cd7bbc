package geometry

import "math"

// MortonDepth is the number of octree levels a Key resolves, chosen so that
// 3 bits/level * MortonDepth fits inside a uint64 with room to spare.
// The widely used "split-by-3" bit-spreading trick below tops out at 21
// bits per axis for the same reason.
const MortonDepth = 21

// Key is a root-relative Morton index: the octant digit at depth d (1-indexed,
// matching node path positions) is the 3-bit group at bit offset
// 3*(MortonDepth-d).
type Key uint64

// ComputeKey quantizes p into root's cube at MortonDepth resolution and
// interleaves the three axes into a single Key. Points are clamped to the
// box so that a point exactly on the root's max boundary still encodes to
// the last cell rather than overflowing.
func ComputeKey(root AABB, p Vec3) Key {
	extent := root.Extent()
	resolution := float64(uint32(1) << MortonDepth)

	quantize := func(value, min, extent float64) uint32 {
		if extent <= 0 {
			return 0
		}
		n := (value - min) / extent
		if n < 0 {
			n = 0
		}
		if n >= 1 {
			return uint32(resolution) - 1
		}
		// A value exactly on a cell boundary goes to the lower cell, the same
		// midplane tie-break AABB.Octant applies at every level.
		c := math.Ceil(n*resolution) - 1
		if c < 0 {
			return 0
		}
		return uint32(c)
	}

	x := quantize(p.X, root.Min.X, extent.X)
	y := quantize(p.Y, root.Min.Y, extent.Y)
	z := quantize(p.Z, root.Min.Z, extent.Z)

	return Key(splitBy3(x) | (splitBy3(y) << 1) | (splitBy3(z) << 2))
}

// splitBy3 expands the low 21 bits of v, inserting two zero bits after
// each source bit, so three such values can be OR-ed together (shifted by
// 0/1/2) to interleave x, y and z into a single Morton code.
func splitBy3(v uint32) uint64 {
	x := uint64(v) & 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

// Digit returns the octant digit (0..7) at 1-indexed depth d, where d=1 is
// the digit selecting a direct child of the root.
func (k Key) Digit(d int) uint8 {
	shift := 3 * (MortonDepth - d)
	return uint8((k >> uint(shift)) & 0x7)
}

// Path renders the first depth digits of k as a node path string.
func (k Key) Path(depth int) string {
	if depth <= 0 {
		return ""
	}
	buf := make([]byte, depth)
	for i := 0; i < depth; i++ {
		buf[i] = '0' + k.Digit(i+1)
	}
	return string(buf)
}
