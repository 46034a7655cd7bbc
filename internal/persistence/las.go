package persistence

import (
	"fmt"

	"github.com/edaniels/lidario"

	"github.com/ecopia-map/octiler/internal/points"
)

// LasNodeStore persists a node's payload as a standalone LAS 1.2 file,
// useful for handing a single node off to LAS-only downstream tooling.
// Only the position, intensity, classification and packed-color
// attributes have a LAS point-record home; NormalOct16 and
// ColorFromIntensity are dropped on write, since LAS has no attribute
// slot for either (loaded back through ReadNode they come back zeroed).
type LasNodeStore struct {
	Dir           string
	PointFormatID byte
}

func (s LasNodeStore) Ext() string { return ".las" }

// WriteNode implements NodeStore.
func (s LasNodeStore) WriteNode(root, path string, schema points.Schema, buf *points.Buffer) error {
	filePath := nodeFilePath(root, path, s.Ext())
	lf, err := lidario.NewLasFile(filePath, "w")
	if err != nil {
		return fmt.Errorf("persistence: creating LAS file %s: %w", filePath, err)
	}
	defer lf.Close()

	pointFormatID := s.PointFormatID
	hasColor := schema.Has(points.ColorPacked) || schema.Has(points.ColorFromIntensity)
	if hasColor {
		pointFormatID = 2
	}
	if err := lf.AddHeader(lidario.LasHeader{PointFormatID: pointFormatID}); err != nil {
		return fmt.Errorf("persistence: writing LAS header: %w", err)
	}

	for i := 0; i < buf.Len(); i++ {
		r := buf.At(i)
		pr0 := &lidario.PointRecord0{
			X: r.Position.X,
			Y: r.Position.Y,
			Z: r.Position.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: r.Classification,
			},
			Intensity:     r.Intensity,
			PointSourceID: 1,
		}

		var lp lidario.LasPointer = pr0
		if hasColor {
			rgb := r.ColorPacked
			if schema.Has(points.ColorFromIntensity) {
				rgb = r.ColorFromI
			}
			red, green, blue := unpackColor(rgb)
			lp = &lidario.PointRecord2{
				PointRecord0: pr0,
				RGB: &lidario.RgbData{
					Red:   uint16(red) << 8,
					Green: uint16(green) << 8,
					Blue:  uint16(blue) << 8,
				},
			}
		}
		if err := lf.AddLasPoint(lp); err != nil {
			return fmt.Errorf("persistence: writing LAS point %d: %w", i, err)
		}
	}
	return nil
}

// ReadNode implements NodeStore.
func (s LasNodeStore) ReadNode(root, path string, schema points.Schema) (*points.Buffer, error) {
	filePath := nodeFilePath(root, path, s.Ext())
	lf, err := lidario.NewLasFile(filePath, "r")
	if err != nil {
		return nil, fmt.Errorf("persistence: opening LAS file %s: %w", filePath, err)
	}
	defer lf.Close()

	buf := points.NewBuffer(schema, lf.Header.NumberPoints)
	hasColor := schema.Has(points.ColorPacked) || schema.Has(points.ColorFromIntensity)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, fmt.Errorf("persistence: reading LAS point %d: %w", i, err)
		}
		d := p.PointData()
		var rec points.Record
		rec.Position.X, rec.Position.Y, rec.Position.Z = d.X, d.Y, d.Z
		rec.Intensity = d.Intensity
		rec.Classification = d.ClassBitField.Value

		if hasColor {
			if rgb := p.RgbData(); rgb != nil {
				packed := packColor(uint8(rgb.Red>>8), uint8(rgb.Green>>8), uint8(rgb.Blue>>8))
				if schema.Has(points.ColorFromIntensity) {
					rec.ColorFromI = packed
				} else {
					rec.ColorPacked = packed
				}
			}
		}
		buf.Append(rec)
	}
	return buf, nil
}

func packColor(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func unpackColor(c uint32) (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}
