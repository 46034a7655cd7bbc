// Package sampler implements the two point-reduction strategies a node
// uses to pick its own stored points before pushing the remainder down to
// its children.
package sampler

import (
	"math"

	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/points"
)

// Sampler selects a subset of buf's points to retain at a node whose
// bounding box is box. It returns the indices (into buf) of the selected
// points, in ascending order.
type Sampler interface {
	Select(buf *points.Buffer, box geometry.AABB) []int
}

// Split partitions buf's points into the selected subset and the
// remainder, given the indices Select returned.
func Split(buf *points.Buffer, selected []int) (kept, remainder *points.Buffer) {
	mask := make([]bool, buf.Len())
	for _, i := range selected {
		mask[i] = true
	}
	kept = points.NewBuffer(buf.Schema, len(selected))
	remainder = points.NewBuffer(buf.Schema, buf.Len()-len(selected))
	for i := 0; i < buf.Len(); i++ {
		if mask[i] {
			kept.Append(buf.At(i))
		} else {
			remainder.Append(buf.At(i))
		}
	}
	return kept, remainder
}

// GridSampler reduces density by overlaying a gridResolution^3 grid on the
// node's box and keeping, per occupied cell, the point nearest the cell's
// center. Ties go to the point with the lowest input index, which is what
// makes the tiling deterministic regardless of scheduling order.
type GridSampler struct {
	Resolution int
}

func cellIndex(v, min, extent float64, resolution int) int {
	if extent <= 0 {
		return 0
	}
	n := (v - min) / extent
	if n < 0 {
		n = 0
	}
	if n >= 1 {
		n = math.Nextafter(1, 0)
	}
	idx := int(n * float64(resolution))
	if idx >= resolution {
		idx = resolution - 1
	}
	return idx
}

func (s GridSampler) cellOf(p geometry.Vec3, box geometry.AABB) int {
	e := box.Extent()
	cx := cellIndex(p.X, box.Min.X, e.X, s.Resolution)
	cy := cellIndex(p.Y, box.Min.Y, e.Y, s.Resolution)
	cz := cellIndex(p.Z, box.Min.Z, e.Z, s.Resolution)
	return (cz*s.Resolution+cy)*s.Resolution + cx
}

func (s GridSampler) cellCenter(cell int, box geometry.AABB) geometry.Vec3 {
	e := box.Extent()
	cx := cell % s.Resolution
	cy := (cell / s.Resolution) % s.Resolution
	cz := cell / (s.Resolution * s.Resolution)
	step := geometry.Vec3{X: e.X / float64(s.Resolution), Y: e.Y / float64(s.Resolution), Z: e.Z / float64(s.Resolution)}
	return geometry.Vec3{
		X: box.Min.X + step.X*(float64(cx)+0.5),
		Y: box.Min.Y + step.Y*(float64(cy)+0.5),
		Z: box.Min.Z + step.Z*(float64(cz)+0.5),
	}
}

// Select implements Sampler.
func (s GridSampler) Select(buf *points.Buffer, box geometry.AABB) []int {
	if s.Resolution <= 0 {
		s.Resolution = 1
	}
	best := map[int]int{}       // cell -> best point index
	bestDist := map[int]float64{}
	for i := 0; i < buf.Len(); i++ {
		p := buf.Position(i)
		cell := s.cellOf(p, box)
		center := s.cellCenter(cell, box)
		d := p.MaxNorm(center)
		if cur, ok := best[cell]; !ok || d < bestDist[cell] || (d == bestDist[cell] && i < cur) {
			best[cell] = i
			bestDist[cell] = d
		}
	}
	out := make([]int, 0, len(best))
	for _, idx := range best {
		out = append(out, idx)
	}
	sortInts(out)
	return out
}

// RandomSampler reduces density by drawing a fixed-size uniform sample
// without replacement, seeded from the node's path so the same node always
// produces the same sample regardless of run-to-run scheduling (§5).
type RandomSampler struct {
	TargetCount int
	Seed        int64
}

// Select implements Sampler.
func (s RandomSampler) Select(buf *points.Buffer, box geometry.AABB) []int {
	n := buf.Len()
	if s.TargetCount >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	rng := newSplitMix64(uint64(s.Seed))
	// Partial Fisher-Yates shuffle of an index permutation, stopping once
	// TargetCount slots are fixed, then sorted for deterministic output
	// order independent of the draw order.
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < s.TargetCount; i++ {
		j := i + int(rng.next()%uint64(n-i))
		perm[i], perm[j] = perm[j], perm[i]
	}
	out := perm[:s.TargetCount]
	sortInts(out)
	return out
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// splitMix64 is a small, fast, deterministic PRNG used to derive a
// reproducible sample order from a node-path-based seed without pulling in
// math/rand's global lock or its non-reproducible auto-seeding.
type splitMix64 struct{ state uint64 }

func newSplitMix64(seed uint64) *splitMix64 {
	return &splitMix64{state: seed}
}

func (r *splitMix64) next() uint64 {
	r.state += 0x9E3779B97F4A7C15
	z := r.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
