package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ecopia-map/octiler/internal/points"
)

func TestXyzSourceParsesPositionsAndColor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud.xyz")
	contents := "# comment\n1.0 2.0 3.0 255 0 128\n4.0 5.0 6.0 10 20 30\n\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	src := XyzSource{Path: path}
	schema := points.Schema{points.Position, points.ColorPacked}
	buf, err := src.Load(schema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if buf.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", buf.Len())
	}
	r0 := buf.At(0)
	if r0.Position.X != 1.0 || r0.Position.Y != 2.0 || r0.Position.Z != 3.0 {
		t.Fatalf("unexpected first position: %+v", r0.Position)
	}
	if r0.ColorPacked != packRGB(255, 0, 128) {
		t.Fatalf("unexpected packed color: %x", r0.ColorPacked)
	}
}

func TestXyzSourceRejectsShortLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud.xyz")
	if err := os.WriteFile(path, []byte("1.0 2.0\n"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	src := XyzSource{Path: path}
	if _, err := src.Load(points.Schema{points.Position}); err == nil {
		t.Fatal("expected an error for a short line")
	}
}

func TestXyzSourceStringIsItsPath(t *testing.T) {
	src := XyzSource{Path: "/tmp/foo.xyz"}
	if src.String() != "/tmp/foo.xyz" {
		t.Fatalf("unexpected String(): %q", src.String())
	}
}

func TestLasSourceStringIsItsPath(t *testing.T) {
	src := LasSource{Path: "/tmp/foo.las"}
	if src.String() != "/tmp/foo.las" {
		t.Fatalf("unexpected String(): %q", src.String())
	}
}
