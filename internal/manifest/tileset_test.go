package manifest

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/tiler"
)

func TestRoundBoundsTrimsToSixDecimals(t *testing.T) {
	in := Bounds{Min: [3]float64{1.1234567, 0, 0}, Max: [3]float64{2.0000001, 3, 4}}
	out := RoundBounds(in)
	if out.Min[0] != 1.123457 {
		t.Fatalf("expected rounding to 6 decimals, got %v", out.Min[0])
	}
}

func TestMarshalProducesIndentedJSON(t *testing.T) {
	ts := Tileset{
		Bounds:     Bounds{Min: [3]float64{0, 0, 0}, Max: [3]float64{1, 1, 1}},
		Projection: "EPSG:4326",
		Sources:    []Source{{Name: "a.las", Points: 10, Bounds: Bounds{Max: [3]float64{1, 1, 1}}}},
		Schema:     []string{"POSITION_CARTESIAN"},
		Spacing:    0.1,
		MaxDepth:   3,
	}
	data, err := Marshal(ts)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Contains(data, []byte("\n\t\"bounds\": {")) {
		t.Fatalf("expected tab-indented JSON, got:\n%s", data)
	}
	var back Tileset
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if diff := cmp.Diff(ts, back); diff != "" {
		t.Fatalf("tileset did not round-trip through JSON (-want +got):\n%s", diff)
	}
}

func TestBuildTilesetReportsRootBoundsAndDiagnostics(t *testing.T) {
	root := &tiler.Node{Path: "", Box: geometry.AABB{Max: geometry.Vec3{X: 2, Y: 2, Z: 2}}}
	srcs := []Source{{Name: "a.las", Points: 100, Bounds: Bounds{Max: [3]float64{2, 2, 2}}}}
	diag := Diagnostics{DiscardedByDepth: 42}

	ts := BuildTileset(root, "EPSG:32632", srcs, []string{"POSITION_CARTESIAN"}, &tiler.Config{Spacing: 0.5, MaxDepth: 6}, diag)

	if ts.Bounds.Max != [3]float64{2, 2, 2} {
		t.Fatalf("unexpected bounds: %+v", ts.Bounds)
	}
	if ts.Projection != "EPSG:32632" {
		t.Fatalf("unexpected projection: %q", ts.Projection)
	}
	if len(ts.Sources) != 1 || ts.Sources[0].Points != 100 {
		t.Fatalf("unexpected sources: %+v", ts.Sources)
	}
	if ts.Spacing != 0.5 || ts.MaxDepth != 6 {
		t.Fatalf("expected cfg's spacing/max_depth to be reported, got %v/%v", ts.Spacing, ts.MaxDepth)
	}
	if ts.Diagnostics.DiscardedByDepth != 42 {
		t.Fatalf("expected diagnostics to carry through, got %+v", ts.Diagnostics)
	}
}

func TestBuildTilesetResolvesDefaultsWhenConfigLeavesThemZero(t *testing.T) {
	root := &tiler.Node{Path: "", Box: geometry.AABB{}}
	ts := BuildTileset(root, "", nil, nil, &tiler.Config{}, Diagnostics{})
	if ts.Spacing != tiler.DefaultSpacing {
		t.Fatalf("expected default spacing %v, got %v", tiler.DefaultSpacing, ts.Spacing)
	}
	if ts.MaxDepth != tiler.DefaultMaxDepth {
		t.Fatalf("expected default max depth %v, got %v", tiler.DefaultMaxDepth, ts.MaxDepth)
	}
}

func TestEmptyTilesetHasNoSourcesOrPayloads(t *testing.T) {
	ts := EmptyTileset(&tiler.Config{MaxDepth: 4, Spacing: 0.2}, []string{"POSITION_CARTESIAN"})
	if len(ts.Sources) != 0 {
		t.Fatalf("expected no sources, got %+v", ts.Sources)
	}
	if ts.Bounds != (Bounds{}) {
		t.Fatalf("expected zero bounds, got %+v", ts.Bounds)
	}
	if ts.MaxDepth != 4 || ts.Spacing != 0.2 {
		t.Fatalf("expected configured spacing/max_depth to carry through, got %+v", ts)
	}
}
