// Package points defines the columnar point batch used throughout the
// tiler: one contiguous array per attribute, so a node's sampler and
// persistence layer can operate on whole columns instead of boxing each
// point.
package points

import "fmt"

// Attribute identifies one of the fixed, recognized point properties. The
// set is closed: every buffer in a run shares the same Schema drawn from
// this enum.
type Attribute uint8

const (
	Position Attribute = iota
	ColorPacked
	ColorFromIntensity
	Intensity
	Classification
	NormalOct16
)

var attributeNames = map[Attribute]string{
	Position:           "POSITION_CARTESIAN",
	ColorPacked:        "COLOR_PACKED",
	ColorFromIntensity: "COLOR_FROM_INTENSITY",
	Intensity:          "INTENSITY",
	Classification:     "CLASSIFICATION",
	NormalOct16:        "NORMAL_OCT16",
}

func (a Attribute) String() string {
	if n, ok := attributeNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Attribute(%d)", uint8(a))
}

// ParseAttribute maps a wire/config name back to an Attribute.
func ParseAttribute(name string) (Attribute, error) {
	for a, n := range attributeNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unrecognized point attribute %q", name)
}

// WireWidth returns the per-point byte width of the attribute in the BIN
// wire format (§6). COLOR_FROM_INTENSITY is a derived attribute computed
// at load time from each point's intensity (a gray level taken from its
// high byte) rather than read from the source verbatim, but once derived
// it is stored and persisted exactly like a packed color column, so it
// shares COLOR_PACKED's width.
func (a Attribute) WireWidth() int {
	switch a {
	case Position:
		return 24
	case ColorPacked, ColorFromIntensity:
		return 4
	case Intensity:
		return 2
	case Classification:
		return 1
	case NormalOct16:
		return 2
	default:
		return 0
	}
}

// Schema is the ordered attribute layout shared by every buffer in a run.
type Schema []Attribute

// Has reports whether the schema includes the given attribute.
func (s Schema) Has(a Attribute) bool {
	for _, x := range s {
		if x == a {
			return true
		}
	}
	return false
}

// Names renders the schema as its attribute name strings, in declared
// order, for the manifest's "schema" field.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.String()
	}
	return out
}

// Hash is a small order-sensitive fingerprint of the schema. The BIN
// reader compares it between the schema rebuilt from a payload header's
// attribute ids and the expected schema to detect a mismatched layout;
// the hash itself is not written to disk.
func (s Schema) Hash() uint32 {
	var h uint32 = 2166136261
	for _, a := range s {
		h ^= uint32(a)
		h *= 16777619
	}
	return h
}
