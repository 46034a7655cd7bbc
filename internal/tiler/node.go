package tiler

import (
	"fmt"

	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/points"
)

// Node is a single octree node: a cubic region of space, the points this
// node itself retains (already reduced by a Sampler), and up to eight
// children covering its octants. A Node with no children is a leaf.
type Node struct {
	// Path identifies the node's position in the tree: the empty string
	// for the root, then one octant digit ('0'..'7') per level below it,
	// so len(Path) is the node's depth and Path itself is the pure
	// octant-digit string a payload file is named after (the root's own
	// file is named "r" by NodeStore, the one place the empty path is
	// special-cased).
	Path string

	Box    geometry.AABB
	Points *points.Buffer

	Parent   *Node
	Children [8]*Node

	// TotalPoints is the number of points routed into this node, set when
	// the node is created: those stored here and under its descendants,
	// plus any its subtree discards at max depth.
	TotalPoints int64

	// GeometricError is this node's screen-space error contribution,
	// recorded unchanged in the run's sqlite node index.
	GeometricError float64
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	for _, c := range n.Children {
		if c != nil {
			return false
		}
	}
	return true
}

// IsRoot reports whether n is the tree root.
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

// ChildPath returns the node path of n's child at the given octant.
func (n *Node) ChildPath(octant uint8) string {
	return n.Path + string([]byte{'0' + octant})
}

// ComputeGeometricError derives n's geometric error from its box size: the
// root's error is its full space diagonal, and every other node's error is
// the diagonal of the region one of its own points could have been
// resampled from, scaled down one level per depth below the root. This
// mirrors the grid tree's cell-size-based estimate, generalized from a
// fixed cell grid to this node's own cubic box.
func (n *Node) ComputeGeometricError(scale float64) float64 {
	if n.IsRoot() {
		return n.Box.Diagonal() * scale
	}
	return n.Box.Diagonal() * scale / 2
}

// Walk visits n and every descendant in depth-first, octant order.
func (n *Node) Walk(visit func(*Node) error) error {
	if err := visit(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if c == nil {
			continue
		}
		if err := c.Walk(visit); err != nil {
			return err
		}
	}
	return nil
}

// String renders a short identifier for logging and error messages.
func (n *Node) String() string {
	return fmt.Sprintf("node[%s]", n.Label())
}

// Label renders n's path the way a reader recognizes it: "r" for the
// root (whose Path is the empty string internally), the path unchanged
// otherwise.
func (n *Node) Label() string {
	if n.Path == "" {
		return "r"
	}
	return n.Path
}
