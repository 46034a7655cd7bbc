// Package sources adapts raw point-cloud files into the columnar
// points.Buffer the tiler consumes. Kept outside the core tiling package
// (§1's non-goal) so the tiler itself never depends on a file format.
package sources

import "github.com/ecopia-map/octiler/internal/points"

// PointSource loads a file's entire point set into one buffer. Every
// adapter in this package is a PointSource; a caller (internal/convert)
// merges multiple sources into the single buffer a Tiler.Build call
// expects.
type PointSource interface {
	// Load reads the source file and decodes it into schema's layout.
	Load(schema points.Schema) (*points.Buffer, error)

	// String names the source for logs and sources.json, typically its
	// file path.
	String() string
}
