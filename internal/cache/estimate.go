package cache

import "github.com/ecopia-map/octiler/internal/points"

// EstimateBufferBytes computes buf's memory footprint from its schema's
// wire widths rather than reflecting over the struct: point count times
// the summed per-attribute wire width. Slice headers and spare capacity
// are not counted.
func EstimateBufferBytes(buf *points.Buffer) int64 {
	if buf == nil {
		return 0
	}
	n := int64(buf.Len())
	var perPoint int64
	for _, a := range buf.Schema {
		perPoint += int64(a.WireWidth())
	}
	return n * perPoint
}
