package persistence

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/points"
)

// binVersion tags every payload file's header so a reader can fail fast on
// a format change instead of misinterpreting its bytes.
const binVersion = uint32(1)

// BinNodeStore persists node payloads using the module's own little-endian
// columnar wire format (§6): a self-describing header (version, the
// attribute-id list the file was written with, point count) followed by
// one contiguous block per attribute, in that same order.
type BinNodeStore struct {
	Dir string
}

func (s BinNodeStore) Ext() string { return ".bin" }

// WriteNode implements NodeStore.
func (s BinNodeStore) WriteNode(root, path string, schema points.Schema, buf *points.Buffer) error {
	data, err := encodeBin(schema, buf)
	if err != nil {
		return err
	}
	return writeFileAtomic(nodeFilePath(root, path, s.Ext()), data, 0644)
}

// ReadNode implements NodeStore.
func (s BinNodeStore) ReadNode(root, path string, schema points.Schema) (*points.Buffer, error) {
	data, err := os.ReadFile(nodeFilePath(root, path, s.Ext()))
	if err != nil {
		return nil, fmt.Errorf("persistence: reading node %s: %w", path, err)
	}
	return decodeBin(schema, data)
}

// encodeBin writes the §6 header — `{u32 version=1, u32 attribute_count,
// [u8 attribute_id]*attribute_count, u64 point_count}` — followed by the
// schema's columns in declared order, so the file carries its own layout
// instead of depending entirely on whatever schema a reader happens to
// supply.
func encodeBin(schema points.Schema, buf *points.Buffer) ([]byte, error) {
	n := buf.Len()
	headerLen := 8 + len(schema) + 8
	header := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(header[0:4], binVersion)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(schema)))
	for i, attr := range schema {
		header[8+i] = uint8(attr)
	}
	binary.LittleEndian.PutUint64(header[8+len(schema):headerLen], uint64(n))

	out := header
	for _, attr := range schema {
		col, err := encodeColumn(attr, buf, n)
		if err != nil {
			return nil, err
		}
		out = append(out, col...)
	}
	return out, nil
}

func encodeColumn(attr points.Attribute, buf *points.Buffer, n int) ([]byte, error) {
	width := attr.WireWidth()
	col := make([]byte, width*n)
	for i := 0; i < n; i++ {
		r := buf.At(i)
		off := i * width
		switch attr {
		case points.Position:
			putVec3(col[off:off+24], r.Position)
		case points.ColorPacked:
			binary.LittleEndian.PutUint32(col[off:off+4], r.ColorPacked)
		case points.ColorFromIntensity:
			binary.LittleEndian.PutUint32(col[off:off+4], r.ColorFromI)
		case points.Intensity:
			binary.LittleEndian.PutUint16(col[off:off+2], r.Intensity)
		case points.Classification:
			col[off] = r.Classification
		case points.NormalOct16:
			binary.LittleEndian.PutUint16(col[off:off+2], r.NormalOct16)
		default:
			return nil, fmt.Errorf("persistence: unsupported attribute %s", attr)
		}
	}
	return col, nil
}

func putVec3(b []byte, v geometry.Vec3) {
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(v.X))
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(v.Y))
	binary.LittleEndian.PutUint64(b[16:24], math.Float64bits(v.Z))
}

func getVec3(b []byte) geometry.Vec3 {
	return geometry.Vec3{
		X: math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
		Z: math.Float64frombits(binary.LittleEndian.Uint64(b[16:24])),
	}
}

// decodeBin reads the §6 header back, recovering the attribute-id list the
// file was actually written with rather than trusting schema to describe
// it, then validates that schema against the file's own layout before
// reading columns off it.
func decodeBin(schema points.Schema, data []byte) (*points.Buffer, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("persistence: payload too small for header (%d bytes)", len(data))
	}
	if version := binary.LittleEndian.Uint32(data[0:4]); version != binVersion {
		return nil, fmt.Errorf("persistence: unsupported bin version %d", version)
	}
	attrCount := int(binary.LittleEndian.Uint32(data[4:8]))
	pos := 8
	if pos+attrCount+8 > len(data) {
		return nil, fmt.Errorf("persistence: payload too small for header (%d bytes)", len(data))
	}
	fileSchema := make(points.Schema, attrCount)
	for i := 0; i < attrCount; i++ {
		fileSchema[i] = points.Attribute(data[pos+i])
	}
	pos += attrCount
	n := int(binary.LittleEndian.Uint64(data[pos : pos+8]))
	pos += 8

	if fileSchema.Hash() != schema.Hash() {
		return nil, fmt.Errorf("persistence: schema mismatch: file carries %v, expected %v", fileSchema, schema)
	}

	buf := points.NewBuffer(schema, n)
	offsets := make(map[points.Attribute][]byte, len(fileSchema))
	for _, attr := range fileSchema {
		width := attr.WireWidth()
		size := width * n
		if pos+size > len(data) {
			return nil, fmt.Errorf("persistence: truncated %s column", attr)
		}
		offsets[attr] = data[pos : pos+size]
		pos += size
	}

	for i := 0; i < n; i++ {
		var r points.Record
		if col, ok := offsets[points.Position]; ok {
			r.Position = getVec3(col[i*24 : i*24+24])
		}
		if col, ok := offsets[points.ColorPacked]; ok {
			r.ColorPacked = binary.LittleEndian.Uint32(col[i*4 : i*4+4])
		}
		if col, ok := offsets[points.ColorFromIntensity]; ok {
			r.ColorFromI = binary.LittleEndian.Uint32(col[i*4 : i*4+4])
		}
		if col, ok := offsets[points.Intensity]; ok {
			r.Intensity = binary.LittleEndian.Uint16(col[i*2 : i*2+2])
		}
		if col, ok := offsets[points.Classification]; ok {
			r.Classification = col[i]
		}
		if col, ok := offsets[points.NormalOct16]; ok {
			r.NormalOct16 = binary.LittleEndian.Uint16(col[i*2 : i*2+2])
		}
		buf.Append(r)
	}
	return buf, nil
}
