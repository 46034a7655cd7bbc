// Package transform applies coordinate reprojection to a finished tile
// tree at persistence time only (§9: reprojecting mid-partition would
// break the octant-containment invariant under a nonlinear projection).
// The interface mirrors the teacher's converters.CoordinateConverter,
// generalized from "convert to WGS84 region" to any forward transform a
// manifest writer or exporter needs.
package transform

import "github.com/ecopia-map/octiler/internal/geometry"

// Transform maps a point from the tiler's working coordinate system into
// an output coordinate system.
type Transform interface {
	Apply(p geometry.Vec3) (geometry.Vec3, error)
}

// Identity returns its input unchanged, used when a run's input and
// output SRIDs already match.
type Identity struct{}

func (Identity) Apply(p geometry.Vec3) (geometry.Vec3, error) { return p, nil }
