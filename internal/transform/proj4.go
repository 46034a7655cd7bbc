package transform

import (
	"fmt"

	"github.com/xeonx/geom"
	"github.com/xeonx/proj4"

	"github.com/ecopia-map/octiler/internal/geometry"
)

// Proj4Transform reprojects points between two PROJ.4-defined coordinate
// systems, the same library the teacher's go.mod carries for converting
// tile coordinates into WGS84, applied here at persistence time to a
// node's own points rather than to a tileset region.
type Proj4Transform struct {
	src, dst *proj4.PJ
}

// NewProj4Transform parses srcDef and dstDef as PROJ.4 definition strings
// (e.g. "+proj=utm +zone=32 +datum=WGS84" or "+proj=longlat +datum=WGS84").
func NewProj4Transform(srcDef, dstDef string) (*Proj4Transform, error) {
	src, err := proj4.InitPlus(srcDef)
	if err != nil {
		return nil, fmt.Errorf("transform: parsing source projection %q: %w", srcDef, err)
	}
	dst, err := proj4.InitPlus(dstDef)
	if err != nil {
		return nil, fmt.Errorf("transform: parsing destination projection %q: %w", dstDef, err)
	}
	return &Proj4Transform{src: src, dst: dst}, nil
}

// Apply implements Transform.
func (t *Proj4Transform) Apply(p geometry.Vec3) (geometry.Vec3, error) {
	pt := geom.Point3D{X: p.X, Y: p.Y, Z: p.Z}
	out, err := proj4.Transform(t.src, t.dst, []geom.Point3D{pt})
	if err != nil {
		return geometry.Vec3{}, fmt.Errorf("transform: proj4 transform failed: %w", err)
	}
	if len(out) != 1 {
		return geometry.Vec3{}, fmt.Errorf("transform: expected 1 transformed point, got %d", len(out))
	}
	return geometry.Vec3{X: out[0].X, Y: out[0].Y, Z: out[0].Z}, nil
}

// Close releases the underlying PROJ.4 handles.
func (t *Proj4Transform) Close() {
	t.src.Free()
	t.dst.Free()
}
