package manifest

import (
	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/tiler"
)

// BoundsFromAABB converts a tiler AABB into a manifest Bounds, rounded to
// six decimal digits so repeated runs over the same input produce the
// same r.json bytes regardless of floating point rounding mode (§8
// determinism).
func BoundsFromAABB(box geometry.AABB) Bounds {
	return RoundBounds(Bounds{
		Min: [3]float64{box.Min.X, box.Min.Y, box.Min.Z},
		Max: [3]float64{box.Max.X, box.Max.Y, box.Max.Z},
	})
}

// BuildTileset assembles the manifest for a completed run: root's box as
// the overall bounds, the caller's projection label, per-source stats,
// schema names, the run's resolved spacing/max_depth, and whatever
// diagnostics counters accumulated along the way.
func BuildTileset(root *tiler.Node, projection string, srcs []Source, schemaNames []string, cfg *tiler.Config, diag Diagnostics) Tileset {
	return Tileset{
		Bounds:      BoundsFromAABB(root.Box),
		Projection:  projection,
		Sources:     srcs,
		Schema:      schemaNames,
		Spacing:     resolveSpacing(cfg),
		MaxDepth:    resolveMaxDepth(cfg),
		Diagnostics: diag,
	}
}

// EmptyTileset builds the manifest written for a run whose input
// contained zero points (§8 S2): empty sources and zero bounds, but the
// run's configured spacing/max_depth are still reported since those
// describe the configuration, not the result.
func EmptyTileset(cfg *tiler.Config, schemaNames []string) Tileset {
	return Tileset{
		Sources:  []Source{},
		Schema:   schemaNames,
		Spacing:  resolveSpacing(cfg),
		MaxDepth: resolveMaxDepth(cfg),
	}
}

func resolveMaxDepth(cfg *tiler.Config) int {
	if cfg != nil && cfg.MaxDepth > 0 {
		return cfg.MaxDepth
	}
	return tiler.DefaultMaxDepth
}

func resolveSpacing(cfg *tiler.Config) float64 {
	if cfg != nil && cfg.Spacing > 0 {
		return cfg.Spacing
	}
	return tiler.DefaultSpacing
}
