package points

import (
	"fmt"

	"github.com/ecopia-map/octiler/internal/geometry"
)

// Buffer is a columnar batch of points sharing a single Schema. Each
// attribute lives in its own slice, indexed in parallel with the others,
// so a sampler or a store can walk one column at a time without touching
// the rest of the record.
type Buffer struct {
	Schema Schema

	position       []geometry.Vec3
	colorPacked    []uint32
	colorFromI     []uint32
	intensity      []uint16
	classification []uint8
	normalOct16    []uint16
}

// NewBuffer returns an empty Buffer with the given schema and a starting
// capacity hint.
func NewBuffer(schema Schema, capacityHint int) *Buffer {
	b := &Buffer{Schema: schema}
	if schema.Has(Position) {
		b.position = make([]geometry.Vec3, 0, capacityHint)
	}
	if schema.Has(ColorPacked) {
		b.colorPacked = make([]uint32, 0, capacityHint)
	}
	if schema.Has(ColorFromIntensity) {
		b.colorFromI = make([]uint32, 0, capacityHint)
	}
	if schema.Has(Intensity) {
		b.intensity = make([]uint16, 0, capacityHint)
	}
	if schema.Has(Classification) {
		b.classification = make([]uint8, 0, capacityHint)
	}
	if schema.Has(NormalOct16) {
		b.normalOct16 = make([]uint16, 0, capacityHint)
	}
	return b
}

// Len returns the number of points held in the buffer.
func (b *Buffer) Len() int {
	return len(b.position)
}

// Record is a single point's worth of attribute values, used only at the
// Buffer/Buffer boundary (Append, At) — internal storage stays columnar.
type Record struct {
	Position       geometry.Vec3
	ColorPacked    uint32
	ColorFromI     uint32
	Intensity      uint16
	Classification uint8
	NormalOct16    uint16
}

// Append adds r to the end of the buffer.
func (b *Buffer) Append(r Record) {
	if b.Schema.Has(Position) {
		b.position = append(b.position, r.Position)
	}
	if b.Schema.Has(ColorPacked) {
		b.colorPacked = append(b.colorPacked, r.ColorPacked)
	}
	if b.Schema.Has(ColorFromIntensity) {
		b.colorFromI = append(b.colorFromI, r.ColorFromI)
	}
	if b.Schema.Has(Intensity) {
		b.intensity = append(b.intensity, r.Intensity)
	}
	if b.Schema.Has(Classification) {
		b.classification = append(b.classification, r.Classification)
	}
	if b.Schema.Has(NormalOct16) {
		b.normalOct16 = append(b.normalOct16, r.NormalOct16)
	}
}

// At reconstructs the record at index i.
func (b *Buffer) At(i int) Record {
	var r Record
	if b.Schema.Has(Position) {
		r.Position = b.position[i]
	}
	if b.Schema.Has(ColorPacked) {
		r.ColorPacked = b.colorPacked[i]
	}
	if b.Schema.Has(ColorFromIntensity) {
		r.ColorFromI = b.colorFromI[i]
	}
	if b.Schema.Has(Intensity) {
		r.Intensity = b.intensity[i]
	}
	if b.Schema.Has(Classification) {
		r.Classification = b.classification[i]
	}
	if b.Schema.Has(NormalOct16) {
		r.NormalOct16 = b.normalOct16[i]
	}
	return r
}

// Position returns the position column value at i. Position is always
// present: every schema in the data model carries it (§3).
func (b *Buffer) Position(i int) geometry.Vec3 {
	return b.position[i]
}

// Bounds computes the AABB enclosing every point in the buffer.
func (b *Buffer) Bounds() geometry.AABB {
	return geometry.FromPoints(b.position)
}

// Slice returns a new Buffer sharing no backing storage, holding the
// records in [lo, hi).
func (b *Buffer) Slice(lo, hi int) *Buffer {
	out := NewBuffer(b.Schema, hi-lo)
	for i := lo; i < hi; i++ {
		out.Append(b.At(i))
	}
	return out
}

// Reorder rebuilds the buffer so that record order[i] becomes position i,
// used after a sort or a grid-sample selection has computed a new
// permutation of indices into the original buffer.
func (b *Buffer) Reorder(order []int) *Buffer {
	out := NewBuffer(b.Schema, len(order))
	for _, idx := range order {
		out.Append(b.At(idx))
	}
	return out
}

// Partition splits the buffer into up to 8 sub-buffers by the octant that
// keyFn assigns each point, preserving each octant's relative input order.
// Octants with no members are omitted from the result map.
func (b *Buffer) Partition(keyFn func(p geometry.Vec3) uint8) map[uint8]*Buffer {
	counts := [8]int{}
	octants := make([]uint8, b.Len())
	for i := 0; i < b.Len(); i++ {
		o := keyFn(b.position[i])
		octants[i] = o
		counts[o]++
	}

	out := make(map[uint8]*Buffer, 8)
	for o, n := range counts {
		if n > 0 {
			out[uint8(o)] = NewBuffer(b.Schema, n)
		}
	}
	for i := 0; i < b.Len(); i++ {
		out[octants[i]].Append(b.At(i))
	}
	return out
}

// Transformed returns a copy of b with every position run through fn,
// leaving every other column untouched. Used at persistence time to
// reproject a node's points without disturbing the tree built from its
// original coordinates.
func (b *Buffer) Transformed(fn func(geometry.Vec3) (geometry.Vec3, error)) (*Buffer, error) {
	out := NewBuffer(b.Schema, b.Len())
	for i := 0; i < b.Len(); i++ {
		r := b.At(i)
		p, err := fn(r.Position)
		if err != nil {
			return nil, fmt.Errorf("points: transforming point %d: %w", i, err)
		}
		r.Position = p
		out.Append(r)
	}
	return out, nil
}

// Concat appends src's records onto the receiver. Schemas must match.
func (b *Buffer) Concat(src *Buffer) error {
	if b.Schema.Hash() != src.Schema.Hash() {
		return fmt.Errorf("points: schema mismatch in Concat")
	}
	for i := 0; i < src.Len(); i++ {
		b.Append(src.At(i))
	}
	return nil
}
