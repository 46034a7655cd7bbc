package sources

import (
	"fmt"

	"github.com/edaniels/lidario"

	"github.com/ecopia-map/octiler/internal/points"
)

// LasSource loads points from a LAS file, grounded on the teacher's own
// readLas/processLasFile flow in pkg/tiler_index.go: open a LasFile, walk
// its point records, convert each into the module's own point
// representation.
type LasSource struct {
	Path           string
	EightBitColors bool
}

// Load implements PointSource.
func (s LasSource) Load(schema points.Schema) (*points.Buffer, error) {
	lf, err := lidario.NewLasFile(s.Path, "r")
	if err != nil {
		return nil, fmt.Errorf("sources: opening LAS file %s: %w", s.Path, err)
	}
	defer lf.Close()

	hasColor := schema.Has(points.ColorPacked)
	hasSyntheticColor := schema.Has(points.ColorFromIntensity)

	buf := points.NewBuffer(schema, lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, fmt.Errorf("sources: reading LAS point %d from %s: %w", i, s.Path, err)
		}
		d := p.PointData()

		var rec points.Record
		rec.Position.X, rec.Position.Y, rec.Position.Z = d.X, d.Y, d.Z
		rec.Intensity = d.Intensity
		rec.Classification = d.ClassBitField.Value

		if hasColor {
			if rgb := p.RgbData(); rgb != nil {
				shift := uint(0)
				if !s.EightBitColors {
					shift = 8
				}
				rec.ColorPacked = packRGB(uint8(rgb.Red>>shift), uint8(rgb.Green>>shift), uint8(rgb.Blue>>shift))
			}
		}
		if hasSyntheticColor {
			// gray derived directly from the intensity's high byte; no
			// per-source or run-wide intensity range normalization is
			// applied.
			gray := uint8(rec.Intensity >> 8)
			rec.ColorFromI = packRGB(gray, gray, gray)
		}

		buf.Append(rec)
	}
	return buf, nil
}

func (s LasSource) String() string { return s.Path }

func packRGB(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}
