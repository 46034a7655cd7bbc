// Package manifest renders a finished run's octree into the r.json
// document written once at the very end of convert.Driver.Index/Merge: the
// run's overall bounds, its source projection, per-source statistics, the
// schema every node payload shares, and the knobs that shaped the tree,
// plus a diagnostics block recording the non-fatal conditions §7 counts
// rather than raises.
package manifest

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Bounds is an axis-aligned box serialized as two 3-vectors.
type Bounds struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// Source is one input's contribution to a run: its point count and the
// bounds of the points it contributed.
type Source struct {
	Name   string `json:"name"`
	Points int64  `json:"points"`
	Bounds Bounds `json:"bounds"`
}

// Diagnostics tallies the non-fatal conditions §7 counts instead of
// raising: points dropped for hitting max_depth, sources with a missing
// attribute, and reprojection failures that fell back to identity.
type Diagnostics struct {
	DiscardedByDepth  int64 `json:"discarded_by_depth"`
	SchemaMismatches  int64 `json:"schema_mismatches"`
	TransformFailures int64 `json:"transform_failures"`
}

// Tileset is the root document written to r.json.
type Tileset struct {
	Bounds      Bounds      `json:"bounds"`
	Projection  string      `json:"projection"`
	Sources     []Source    `json:"sources"`
	Schema      []string    `json:"schema"`
	Spacing     float64     `json:"spacing"`
	MaxDepth    int         `json:"max_depth"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Marshal renders t as indented JSON, matching the teacher's
// json.MarshalIndent(tileset, "", "\t") call.
func Marshal(t Tileset) ([]byte, error) {
	return json.MarshalIndent(t, "", "\t")
}

// roundTo6 trims a coordinate to 6 decimal digits using shopspring/decimal
// rather than manual float formatting, so r.json serializes identically
// across platforms regardless of floating point rounding mode.
func roundTo6(v float64) float64 {
	d := decimal.NewFromFloat(v).Round(6)
	f, _ := d.Float64()
	return f
}

// RoundBounds rounds every coordinate of b to 6 decimal digits.
func RoundBounds(b Bounds) Bounds {
	for i := range b.Min {
		b.Min[i] = roundTo6(b.Min[i])
	}
	for i := range b.Max {
		b.Max[i] = roundTo6(b.Max[i])
	}
	return b
}
