package tiler

import (
	"context"
	"testing"

	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/points"
	"github.com/ecopia-map/octiler/internal/progress"
)

func scatteredBuffer(n int) *points.Buffer {
	buf := points.NewBuffer(points.Schema{points.Position}, n)
	for i := 0; i < n; i++ {
		x := float64((i*7)%100) / 100.0
		y := float64((i*13)%100) / 100.0
		z := float64((i*31)%100) / 100.0
		buf.Append(points.Record{Position: geometry.Vec3{X: x, Y: y, Z: z}})
	}
	return buf
}

func countNodePoints(n *Node) int64 {
	total := int64(n.Points.Len())
	for _, c := range n.Children {
		if c != nil {
			total += countNodePoints(c)
		}
	}
	return total
}

func TestBuildReturnsNoNodeForEmptyInput(t *testing.T) {
	cfg := &Config{Algorithm: AlgorithmV1, Sampler: "GRID", GridResolution: 2, MaxPointsPerNode: 10}
	tl := New(cfg, nil)
	root, err := tl.Build(context.Background(), points.NewBuffer(points.Schema{points.Position}, 0))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if root != nil {
		t.Fatalf("expected a nil root for empty input, got %+v", root)
	}
}

func TestBuildV1PlacesEveryPoint(t *testing.T) {
	buf := scatteredBuffer(500)
	cfg := &Config{Algorithm: AlgorithmV1, Sampler: "GRID", GridResolution: 2, MaxPointsPerNode: 10}
	tl := New(cfg, nil)

	root, err := tl.Build(context.Background(), buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := countNodePoints(root); got != 500 {
		t.Fatalf("expected all 500 points placed, got %d", got)
	}
}

func TestBuildV1AndV2AgreeOnPointCount(t *testing.T) {
	buf := scatteredBuffer(800)

	cfgV1 := &Config{Algorithm: AlgorithmV1, Sampler: "GRID", GridResolution: 2, MaxPointsPerNode: 20, MaxConcurrency: 4}
	rootV1, err := New(cfgV1, nil).Build(context.Background(), buf)
	if err != nil {
		t.Fatalf("V1 Build: %v", err)
	}

	cfgV2 := cfgV1.Copy()
	cfgV2.Algorithm = AlgorithmV2
	rootV2, err := New(cfgV2, nil).Build(context.Background(), buf)
	if err != nil {
		t.Fatalf("V2 Build: %v", err)
	}

	n1, n2 := countNodePoints(rootV1), countNodePoints(rootV2)
	if n1 != n2 {
		t.Fatalf("V1 placed %d points, V2 placed %d", n1, n2)
	}
	if n1 != 800 {
		t.Fatalf("expected 800 points placed, got %d", n1)
	}
}

func TestBuildLeafHasNoChildrenWhenRemainderEmpty(t *testing.T) {
	buf := scatteredBuffer(4)
	// MaxPointsPerNode (2) is below buf's size so the capacity stop
	// condition can't short-circuit this; the grid must be fine enough on
	// its own to give every point its own cell and retain them all.
	cfg := &Config{Algorithm: AlgorithmV1, Sampler: "GRID", GridResolution: 1000, MaxPointsPerNode: 2}
	root, err := New(cfg, nil).Build(context.Background(), buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !root.IsLeaf() {
		t.Fatalf("expected a grid fine enough to give every point its own cell to retain them all at the root")
	}
}

func TestBuildNodePathsArePureOctantDigitStrings(t *testing.T) {
	// The root's Path must be empty (NodeStore names its file "r"
	// specially) and every descendant's Path must be the bare
	// octant-digit string a payload file is named after, with no "r"
	// prefix: len(Path) is the node's depth.
	buf := scatteredBuffer(200)
	cfg := &Config{Algorithm: AlgorithmV1, Sampler: "GRID", GridResolution: 2, MaxPointsPerNode: 5}
	root, err := New(cfg, nil).Build(context.Background(), buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if root.Path != "" {
		t.Fatalf("expected root's Path to be empty, got %q", root.Path)
	}

	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		if len(n.Path) != depth {
			t.Fatalf("node at depth %d has path %q of length %d", depth, n.Path, len(n.Path))
		}
		for _, b := range []byte(n.Path) {
			if b < '0' || b > '7' {
				t.Fatalf("path %q contains a non-octant-digit byte %q", n.Path, b)
			}
		}
		for octant, c := range n.Children {
			if c == nil {
				continue
			}
			if want := n.Path + string([]byte{'0' + byte(octant)}); c.Path != want {
				t.Fatalf("expected child path %q, got %q", want, c.Path)
			}
			walk(c, depth+1)
		}
	}
	walk(root, 0)
}

func TestBuildStopsAtCapacityWithNoChildren(t *testing.T) {
	buf := scatteredBuffer(50)
	cfg := &Config{Algorithm: AlgorithmV1, Sampler: "GRID", GridResolution: 2, MaxPointsPerNode: 100}
	root, err := New(cfg, nil).Build(context.Background(), buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !root.IsLeaf() {
		t.Fatalf("expected the root to absorb every point once count <= capacity")
	}
	if root.Points.Len() != 50 {
		t.Fatalf("expected all 50 points stored verbatim, got %d", root.Points.Len())
	}
}

func TestBuildDiscardsOverflowAtMaxDepthWithoutRecursingForever(t *testing.T) {
	// Mirrors the coincident-point scenario: every point lands in the
	// same cell/octant forever, so only a depth cap bounds recursion.
	schema := points.Schema{points.Position}
	buf := points.NewBuffer(schema, 100000)
	for i := 0; i < 100000; i++ {
		buf.Append(points.Record{Position: geometry.Vec3{X: 0.5, Y: 0.5, Z: 0.5}})
	}

	rep := progress.New()
	cfg := &Config{Algorithm: AlgorithmV1, Sampler: "GRID", GridResolution: 2, MaxPointsPerNode: 100, MaxDepth: 5}
	root, err := New(cfg, rep).Build(context.Background(), buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	deepest := root
	depth := 0
	for !deepest.IsLeaf() {
		var next *Node
		for _, c := range deepest.Children {
			if c != nil {
				next = c
				break
			}
		}
		if next == nil {
			t.Fatalf("expected a single occupied child at every level for coincident input")
		}
		deepest = next
		depth++
	}
	if depth != cfg.MaxDepth {
		t.Fatalf("expected recursion to stop exactly at max depth %d, stopped at %d", cfg.MaxDepth, depth)
	}

	discarded := rep.Counter("discarded_by_depth").Value()
	if discarded <= 0 {
		t.Fatalf("expected some points discarded by depth, got %d", discarded)
	}
	// Invariant #1: every input point is either stored or tallied as
	// discarded_by_depth, never both and never neither.
	if stored := countNodePoints(root); stored+discarded != 100000 {
		t.Fatalf("stored (%d) + discarded (%d) should equal input size 100000", stored, discarded)
	}
}
