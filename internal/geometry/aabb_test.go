package geometry

import "testing"

func TestMakeCubic(t *testing.T) {
	box := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{4, 2, 1}}
	cubic := MakeCubic(box)
	if !cubic.IsCubic() {
		t.Fatalf("expected cubic box, got %+v", cubic)
	}
	if cubic.Mid() != box.Mid() {
		t.Fatalf("MakeCubic should preserve the center: got %+v want %+v", cubic.Mid(), box.Mid())
	}
}

func TestOctantMidplaneTieBreak(t *testing.T) {
	box := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{2, 2, 2}}
	if got := box.Octant(Vec3{1, 1, 1}); got != 0 {
		t.Fatalf("point exactly on all midplanes should take octant 0, got %d", got)
	}
	if got := box.Octant(Vec3{2, 2, 2}); got != 7 {
		t.Fatalf("point at the root max corner should clamp into octant 7, got %d", got)
	}
}

func TestChildAABBPartitionsRoot(t *testing.T) {
	root := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{8, 8, 8}}
	seen := map[uint8]AABB{}
	for o := uint8(0); o < 8; o++ {
		seen[o] = root.Child(o)
	}
	for o, box := range seen {
		if box.Extent() != (Vec3{4, 4, 4}) {
			t.Fatalf("octant %d has unexpected extent %+v", o, box.Extent())
		}
	}
}

func TestChildAABBFromPathMatchesOctantOf(t *testing.T) {
	root := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{8, 8, 8}}
	p := Vec3{1, 7, 3}
	o1 := root.Octant(p)
	c1 := root.Child(o1)
	o2 := c1.Octant(p)
	path := string([]byte{'0' + o1, '0' + o2})

	derived := ChildAABBFromPath(root, path)
	direct := root.Child(o1).Child(o2)
	if derived != direct {
		t.Fatalf("ChildAABBFromPath mismatch: got %+v want %+v", derived, direct)
	}
	if !derived.Contains(p) {
		t.Fatalf("point should be contained in its own leaf box")
	}
}
