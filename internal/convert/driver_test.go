package convert

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/manifest"
	"github.com/ecopia-map/octiler/internal/persistence"
	"github.com/ecopia-map/octiler/internal/points"
	"github.com/ecopia-map/octiler/internal/sources"
	"github.com/ecopia-map/octiler/internal/tiler"
)

// fakeSource hands back a fixed buffer instead of decoding a file, so
// Driver tests don't need real LAS/XYZ fixtures on disk.
type fakeSource struct {
	name string
	buf  *points.Buffer
}

func (f fakeSource) Load(points.Schema) (*points.Buffer, error) { return f.buf, nil }
func (f fakeSource) String() string                             { return f.name }

var _ sources.PointSource = fakeSource{}

func scatteredRecord(x, y, z float64) points.Record {
	var r points.Record
	r.Position = geometry.Vec3{X: x, Y: y, Z: z}
	return r
}

func newTestDriver() *Driver {
	schema := points.Schema{points.Position}
	cfg := &tiler.Config{
		RandomSamplerCap:    1,
		MaxPointsPerNode:    4,
		GridResolution:      1000,
		Sampler:             "GRID",
		Algorithm:           tiler.AlgorithmV1,
		RefineMode:          tiler.RefineModeAdd,
		GeometricErrorScale: 1,
	}
	return NewDriver(schema, cfg, persistence.BinNodeStore{}, nil, nil)
}

func TestIndexWritesManifestAndNodeFiles(t *testing.T) {
	dir := t.TempDir()
	buf := points.NewBuffer(points.Schema{points.Position}, 0)
	for i := 0; i < 20; i++ {
		buf.Append(scatteredRecord(float64(i), float64(i%3), float64(-i)))
	}

	driver := newTestDriver()
	src := fakeSource{name: "mem", buf: buf}
	if _, err := driver.Index(context.Background(), []sources.PointSource{src}, dir); err != nil {
		t.Fatalf("Index: %v", err)
	}

	if _, err := os.Stat(manifestPath(dir)); err != nil {
		t.Fatalf("expected manifest at %s: %v", manifestFileName, err)
	}
	if _, err := os.Stat(filepath.Join(nodeDataRoot(dir), "r.bin")); err != nil {
		t.Fatalf("expected root payload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, sourcesFileName)); err != nil {
		t.Fatalf("expected %s: %v", sourcesFileName, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, sourcesFileName))
	if err != nil {
		t.Fatalf("reading sources.json: %v", err)
	}
	var stats []SourceStat
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshaling sources.json: %v", err)
	}
	if len(stats) != 1 || stats[0].PointCount != 20 || stats[0].Path != "mem" {
		t.Fatalf("unexpected source stats: %+v", stats)
	}
}

func TestIndexAbortsWhenOutputAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	buf := points.NewBuffer(points.Schema{points.Position}, 0)
	buf.Append(scatteredRecord(1, 2, 3))

	driver := newTestDriver()
	srcs := []sources.PointSource{fakeSource{name: "mem", buf: buf}}
	if _, err := driver.Index(context.Background(), srcs, dir); err != nil {
		t.Fatalf("first Index: %v", err)
	}
	if _, err := driver.Index(context.Background(), srcs, dir); err == nil {
		t.Fatal("expected ErrOutputExists on a second Index into the same dir")
	}
}

func TestIndexOverwriteReplacesPriorRun(t *testing.T) {
	dir := t.TempDir()
	buf := points.NewBuffer(points.Schema{points.Position}, 0)
	buf.Append(scatteredRecord(1, 2, 3))

	driver := newTestDriver()
	srcs := []sources.PointSource{fakeSource{name: "mem", buf: buf}}
	if _, err := driver.Index(context.Background(), srcs, dir); err != nil {
		t.Fatalf("first Index: %v", err)
	}
	driver.StoreOption = Overwrite
	if _, err := driver.Index(context.Background(), srcs, dir); err != nil {
		t.Fatalf("overwrite Index: %v", err)
	}
}

func TestIndexIncrementalIsRejected(t *testing.T) {
	dir := t.TempDir()
	buf := points.NewBuffer(points.Schema{points.Position}, 0)
	buf.Append(scatteredRecord(1, 2, 3))

	driver := newTestDriver()
	srcs := []sources.PointSource{fakeSource{name: "mem", buf: buf}}
	if _, err := driver.Index(context.Background(), srcs, dir); err != nil {
		t.Fatalf("first Index: %v", err)
	}
	driver.StoreOption = Incremental
	if _, err := driver.Index(context.Background(), srcs, dir); err == nil {
		t.Fatal("expected incremental indexing to be rejected")
	}
}

func TestVerifyFailsWithoutAPriorIndex(t *testing.T) {
	dir := t.TempDir()
	driver := newTestDriver()
	if err := driver.Verify(dir); err == nil {
		t.Fatal("expected Verify to fail when no index run has happened")
	}
}

func TestVerifySucceedsAfterIndex(t *testing.T) {
	dir := t.TempDir()
	buf := points.NewBuffer(points.Schema{points.Position}, 0)
	for i := 0; i < 5; i++ {
		buf.Append(scatteredRecord(float64(i), 0, 0))
	}

	driver := newTestDriver()
	srcs := []sources.PointSource{fakeSource{name: "mem", buf: buf}}
	if _, err := driver.Index(context.Background(), srcs, dir); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := driver.Verify(dir); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestMergeCombinesTwoIndexedRuns(t *testing.T) {
	left := t.TempDir()
	right := t.TempDir()
	out := t.TempDir()

	leftBuf := points.NewBuffer(points.Schema{points.Position}, 0)
	for i := 0; i < 10; i++ {
		leftBuf.Append(scatteredRecord(float64(i), 0, 0))
	}
	rightBuf := points.NewBuffer(points.Schema{points.Position}, 0)
	for i := 0; i < 10; i++ {
		rightBuf.Append(scatteredRecord(float64(-i), 0, 0))
	}

	leftDriver := newTestDriver()
	if _, err := leftDriver.Index(context.Background(), []sources.PointSource{fakeSource{name: "left", buf: leftBuf}}, left); err != nil {
		t.Fatalf("indexing left: %v", err)
	}
	rightDriver := newTestDriver()
	if _, err := rightDriver.Index(context.Background(), []sources.PointSource{fakeSource{name: "right", buf: rightBuf}}, right); err != nil {
		t.Fatalf("indexing right: %v", err)
	}

	mergeDriver := newTestDriver()
	root, err := mergeDriver.Merge(context.Background(), []string{left, right}, out)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if root.TotalPoints != 20 {
		t.Fatalf("expected 20 merged points, got %d", root.TotalPoints)
	}
}

func TestIndexOfZeroPointsSucceedsWithEmptyManifest(t *testing.T) {
	dir := t.TempDir()
	empty := points.NewBuffer(points.Schema{points.Position}, 0)

	driver := newTestDriver()
	srcs := []sources.PointSource{fakeSource{name: "empty", buf: empty}}
	root, err := driver.Index(context.Background(), srcs, dir)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if root != nil {
		t.Fatalf("expected a nil root for zero-point input, got %+v", root)
	}

	data, err := os.ReadFile(manifestPath(dir))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	var ts manifest.Tileset
	if err := json.Unmarshal(data, &ts); err != nil {
		t.Fatalf("unmarshaling manifest: %v", err)
	}
	if len(ts.Sources) != 0 {
		t.Fatalf("expected no sources in an empty-input manifest, got %+v", ts.Sources)
	}
	if _, err := os.Stat(nodeDataRoot(dir)); err == nil {
		t.Fatalf("expected no node payload directory for zero-point input")
	}
}

func TestIndexManifestReportsSourceBoundsAndSchema(t *testing.T) {
	dir := t.TempDir()
	buf := points.NewBuffer(points.Schema{points.Position}, 0)
	buf.Append(scatteredRecord(0, 0, 0))
	buf.Append(scatteredRecord(1, 2, 3))

	driver := newTestDriver()
	driver.ProjectionLabel = "EPSG:32632"
	srcs := []sources.PointSource{fakeSource{name: "mem", buf: buf}}
	if _, err := driver.Index(context.Background(), srcs, dir); err != nil {
		t.Fatalf("Index: %v", err)
	}

	data, err := os.ReadFile(manifestPath(dir))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	var ts manifest.Tileset
	if err := json.Unmarshal(data, &ts); err != nil {
		t.Fatalf("unmarshaling manifest: %v", err)
	}
	if ts.Projection != "EPSG:32632" {
		t.Fatalf("expected projection label to carry through, got %q", ts.Projection)
	}
	if len(ts.Sources) != 1 || ts.Sources[0].Points != 2 || ts.Sources[0].Bounds.Max != [3]float64{1, 2, 3} {
		t.Fatalf("unexpected manifest sources: %+v", ts.Sources)
	}
	if len(ts.Schema) != 1 || ts.Schema[0] != "POSITION_CARTESIAN" {
		t.Fatalf("unexpected manifest schema: %+v", ts.Schema)
	}
}

func TestIndexFailsFastOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	buf := points.NewBuffer(points.Schema{points.Position}, 0)
	buf.Append(scatteredRecord(1, 2, 3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := newTestDriver()
	srcs := []sources.PointSource{fakeSource{name: "mem", buf: buf}}
	if _, err := driver.Index(ctx, srcs, dir); err == nil {
		t.Fatal("expected Index to observe the cancelled context")
	}
}
