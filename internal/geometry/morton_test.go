package geometry

import "testing"

func TestKeyDigitsMatchOctantWalk(t *testing.T) {
	root := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{8, 8, 8}}
	p := Vec3{1, 7, 3}

	key := ComputeKey(root, p)

	box := root
	for depth := 1; depth <= 3; depth++ {
		wantDigit := box.Octant(p)
		gotDigit := key.Digit(depth)
		if gotDigit != wantDigit {
			t.Fatalf("depth %d: digit mismatch got %d want %d", depth, gotDigit, wantDigit)
		}
		box = box.Child(wantDigit)
	}
}

func TestKeyPathRoundTripsThroughChildAABBFromPath(t *testing.T) {
	root := AABB{Min: Vec3{-10, -10, -10}, Max: Vec3{10, 10, 10}}
	p := Vec3{4.2, -8.9, 0.01}

	key := ComputeKey(root, p)
	path := key.Path(5)
	leaf := ChildAABBFromPath(root, path)

	if !leaf.Contains(p) {
		t.Fatalf("leaf box %+v derived from path %q does not contain point %+v", leaf, path, p)
	}
}

func TestComputeKeyClampsMaxBoundary(t *testing.T) {
	root := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}}
	key := ComputeKey(root, root.Max)
	for d := 1; d <= 4; d++ {
		if key.Digit(d) != 7 {
			t.Fatalf("point at max corner should encode digit 7 at every depth, got %d at depth %d", key.Digit(d), d)
		}
	}
}
