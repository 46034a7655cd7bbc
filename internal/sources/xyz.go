package sources

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ecopia-map/octiler/internal/points"
)

// XyzSource loads a plain-text point cloud, one point per line of
// whitespace-separated "x y z" (optionally followed by "r g b" and
// "intensity"), the common ASCII interchange format alongside LAS.
type XyzSource struct {
	Path string
}

func (s XyzSource) String() string { return s.Path }

// Load implements PointSource.
func (s XyzSource) Load(schema points.Schema) (*points.Buffer, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("sources: opening %s: %w", s.Path, err)
	}
	defer f.Close()

	hasColor := schema.Has(points.ColorPacked)
	buf := points.NewBuffer(schema, 0)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("sources: %s:%d: expected at least 3 fields, got %d", s.Path, lineNo, len(fields))
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("sources: %s:%d: parsing x: %w", s.Path, lineNo, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("sources: %s:%d: parsing y: %w", s.Path, lineNo, err)
		}
		z, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("sources: %s:%d: parsing z: %w", s.Path, lineNo, err)
		}

		var rec points.Record
		rec.Position.X, rec.Position.Y, rec.Position.Z = x, y, z

		if hasColor && len(fields) >= 6 {
			r, err := strconv.ParseUint(fields[3], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("sources: %s:%d: parsing r: %w", s.Path, lineNo, err)
			}
			g, err := strconv.ParseUint(fields[4], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("sources: %s:%d: parsing g: %w", s.Path, lineNo, err)
			}
			b, err := strconv.ParseUint(fields[5], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("sources: %s:%d: parsing b: %w", s.Path, lineNo, err)
			}
			rec.ColorPacked = packRGB(uint8(r), uint8(g), uint8(b))
		}
		if schema.Has(points.Intensity) && len(fields) >= 7 {
			v, err := strconv.ParseUint(fields[6], 10, 16)
			if err != nil {
				return nil, fmt.Errorf("sources: %s:%d: parsing intensity: %w", s.Path, lineNo, err)
			}
			rec.Intensity = uint16(v)
		}
		buf.Append(rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sources: scanning %s: %w", s.Path, err)
	}
	return buf, nil
}
