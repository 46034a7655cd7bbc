package sampler

import (
	"testing"

	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/points"
)

func bufOf(ps ...geometry.Vec3) *points.Buffer {
	b := points.NewBuffer(points.Schema{points.Position}, len(ps))
	for _, p := range ps {
		b.Append(points.Record{Position: p})
	}
	return b
}

func TestGridSamplerPicksNearestToCellCenter(t *testing.T) {
	box := geometry.AABB{Min: geometry.Vec3{0, 0, 0}, Max: geometry.Vec3{2, 2, 2}}
	buf := bufOf(
		geometry.Vec3{0.1, 0.1, 0.1}, // far from center of cell (0,0,0) at (0.5,0.5,0.5)
		geometry.Vec3{0.5, 0.5, 0.5}, // exact center, should win
		geometry.Vec3{1.5, 1.5, 1.5}, // different cell
	)
	s := GridSampler{Resolution: 2}
	selected := s.Select(buf, box)
	if len(selected) != 2 {
		t.Fatalf("expected 2 occupied cells, got %d", len(selected))
	}
	found := false
	for _, idx := range selected {
		if idx == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the exact-center point (index 1) to be selected")
	}
}

func TestGridSamplerTieBreakLowestIndex(t *testing.T) {
	box := geometry.AABB{Min: geometry.Vec3{0, 0, 0}, Max: geometry.Vec3{1, 1, 1}}
	buf := bufOf(
		geometry.Vec3{0.5, 0.5, 0.5},
		geometry.Vec3{0.5, 0.5, 0.5},
	)
	s := GridSampler{Resolution: 1}
	selected := s.Select(buf, box)
	if len(selected) != 1 || selected[0] != 0 {
		t.Fatalf("expected tie resolved to lowest index 0, got %v", selected)
	}
}

func TestRandomSamplerDeterministicForSameSeed(t *testing.T) {
	buf := bufOf(
		geometry.Vec3{0, 0, 0}, geometry.Vec3{1, 0, 0}, geometry.Vec3{2, 0, 0},
		geometry.Vec3{3, 0, 0}, geometry.Vec3{4, 0, 0}, geometry.Vec3{5, 0, 0},
	)
	s := RandomSampler{TargetCount: 3, Seed: 42}
	a := s.Select(buf, geometry.AABB{})
	b := s.Select(buf, geometry.AABB{})
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("expected 3 samples, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different samples: %v vs %v", a, b)
		}
	}
}

func TestRandomSamplerReturnsAllWhenTargetExceedsCount(t *testing.T) {
	buf := bufOf(geometry.Vec3{0, 0, 0}, geometry.Vec3{1, 0, 0})
	s := RandomSampler{TargetCount: 10, Seed: 1}
	selected := s.Select(buf, geometry.AABB{})
	if len(selected) != 2 {
		t.Fatalf("expected all 2 points, got %d", len(selected))
	}
}
