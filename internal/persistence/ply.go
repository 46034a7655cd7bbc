package persistence

import (
	"fmt"

	plyfile "github.com/cobaltgray/go-plyfile"

	"github.com/ecopia-map/octiler/internal/points"
)

// PLYExporter writes a node's points out as a standalone PLY file, the
// intermediate format DracoCompressor consumes (draco_encoder only reads
// ply or obj, never this module's own BIN format directly).
type PLYExporter struct{}

// Export writes buf to filePath as a binary little-endian PLY point
// cloud with x/y/z and, if present, red/green/blue vertex properties.
func (PLYExporter) Export(filePath string, schema points.Schema, buf *points.Buffer) error {
	hasColor := schema.Has(points.ColorPacked) || schema.Has(points.ColorFromIntensity)

	verts := make([]plyfile.Vertex, buf.Len())
	for i := 0; i < buf.Len(); i++ {
		r := buf.At(i)
		v := plyfile.Vertex{
			X: float32(r.Position.X),
			Y: float32(r.Position.Y),
			Z: float32(r.Position.Z),
		}
		if hasColor {
			rgb := r.ColorPacked
			if schema.Has(points.ColorFromIntensity) {
				rgb = r.ColorFromI
			}
			red, green, blue := unpackColor(rgb)
			v.Red, v.Green, v.Blue = red, green, blue
		}
		verts[i] = v
	}

	if err := plyfile.WritePlyFile(filePath, verts); err != nil {
		return fmt.Errorf("persistence: writing ply file %s: %w", filePath, err)
	}
	return nil
}
