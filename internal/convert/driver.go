package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"github.com/ecopia-map/octiler/internal/cache"
	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/manifest"
	"github.com/ecopia-map/octiler/internal/persistence"
	"github.com/ecopia-map/octiler/internal/points"
	"github.com/ecopia-map/octiler/internal/progress"
	"github.com/ecopia-map/octiler/internal/sources"
	"github.com/ecopia-map/octiler/internal/tiler"
	"github.com/ecopia-map/octiler/internal/transform"
)

// defaultProcessThreshold mirrors tiler.Config.ProcessThreshold's §6
// default: a run that leaves it unset still gets bounded-batch ingest
// rather than one unbounded buffer.
const defaultProcessThreshold = 1_000_000

// StoreOption governs how Index reacts to an outputDir that already holds
// a tileset.
type StoreOption string

const (
	// AbortIfExists fails Index immediately if outputDir already has a
	// manifest, the default, matching the teacher's refusal to clobber a
	// prior run silently.
	AbortIfExists StoreOption = "ABORT_IF_EXISTS"

	// Overwrite removes outputDir's existing node payloads, index and
	// manifest before writing the new run's.
	Overwrite StoreOption = "OVERWRITE"

	// Incremental is accepted but not implemented: reconciling an
	// existing tree's spacing/schema against a new run's points needs
	// either a shared sampler seed or a full re-tile, neither of which
	// this driver attempts. When outputDir already holds a manifest, Index
	// returns an error naming this; into an empty outputDir it runs as a
	// fresh index (see DESIGN.md's Open Question on incremental indexing).
	Incremental StoreOption = "INCREMENTAL"
)

const manifestFileName = "r.json"
const nodeDataDir = "data"
const sourcesFileName = "sources.json"

// SourceStat records one input source's contribution to a run, written to
// outputDir/sources.json per §6's on-disk layout and folded into r.json's
// "sources" field.
type SourceStat struct {
	Path       string        `json:"path"`
	PointCount int           `json:"point_count"`
	Bounds     geometry.AABB `json:"bounds"`
}

// Driver wires together a run's source adapters, Tiler and NodeStore. One
// Driver handles one output tree.
type Driver struct {
	Schema points.Schema
	Config *tiler.Config
	Store  persistence.NodeStore

	// ProjectionLabel is the string r.json's "projection" field carries,
	// e.g. "EPSG:32632" or a PROJ.4 definition. Left empty when a run's
	// input is already in its output CRS.
	ProjectionLabel string

	Transform   transform.Transform
	Progress    *progress.Reporter
	StoreOption StoreOption

	// Draco, when non-nil, additionally exports every leaf node as a
	// draco-compressed .drc file alongside its regular NodeStore payload.
	Draco *persistence.DracoCompressor
}

// NewDriver returns a Driver with a fresh progress.Reporter if rep is nil.
func NewDriver(schema points.Schema, cfg *tiler.Config, store persistence.NodeStore, tr transform.Transform, rep *progress.Reporter) *Driver {
	if rep == nil {
		rep = progress.New()
	}
	if tr == nil {
		tr = transform.Identity{}
	}
	return &Driver{Schema: schema, Config: cfg, Store: store, Transform: tr, Progress: rep, StoreOption: AbortIfExists}
}

func manifestPath(outputDir string) string {
	return filepath.Join(outputDir, manifestFileName)
}

func nodeDataRoot(outputDir string) string {
	return filepath.Join(outputDir, nodeDataDir)
}

// Index loads every source through a bounded ingest cache.PointsCache,
// tiling and persisting a batch each time §6's process_threshold or
// max_memory_usage_MiB is crossed rather than holding every source's
// points resident at once, then combines any resulting batches into the
// final tree under outputDir alongside its r.json manifest. A source set
// that yields zero points still succeeds, writing a manifest with no
// sources and no node payloads (§8 S2) instead of erroring.
func (d *Driver) Index(ctx context.Context, srcs []sources.PointSource, outputDir string) (*tiler.Node, error) {
	if len(srcs) == 0 {
		return nil, ErrNoSources
	}

	exists := false
	if _, err := os.Stat(manifestPath(outputDir)); err == nil {
		exists = true
	}
	switch {
	case exists && d.StoreOption == Incremental:
		return nil, fmt.Errorf("convert: incremental indexing is not implemented (%s already has a tileset)", outputDir)
	case exists && d.StoreOption == Overwrite:
		if err := os.RemoveAll(nodeDataRoot(outputDir)); err != nil {
			return nil, fmt.Errorf("convert: clearing previous run: %w", err)
		}
		for _, stale := range []string{filepath.Join(outputDir, "index.sqlite"), manifestPath(outputDir)} {
			if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("convert: clearing previous run: %w", err)
			}
		}
	case exists:
		return nil, ErrOutputExists
	}

	threshold := d.Config.ProcessThreshold
	if threshold <= 0 {
		threshold = defaultProcessThreshold
	}
	var memLimit int64
	if d.Config.MaxMemoryUsageMiB > 0 {
		memLimit = d.Config.MaxMemoryUsageMiB * 1024 * 1024
	}

	ingest := cache.New(0)
	t := tiler.New(d.Config, d.Progress)

	ing := &ingestRun{driver: d, tiler: t, outputDir: outputDir}
	var queued int64
	stats := make([]SourceStat, 0, len(srcs))

	for _, src := range srcs {
		loaded, err := src.Load(d.Schema)
		if err != nil {
			return nil, fmt.Errorf("convert: loading source: %w", err)
		}
		if _, err := ingest.Put(loaded); err != nil {
			return nil, fmt.Errorf("convert: queuing source: %w", err)
		}
		stats = append(stats, SourceStat{Path: src.String(), PointCount: loaded.Len(), Bounds: loaded.Bounds()})
		queued += int64(loaded.Len())
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", tiler.ErrCancelled, err)
		}

		if queued >= threshold || (memLimit > 0 && ingest.InUseBytes() >= memLimit) {
			if err := ing.drain(ctx, ingest); err != nil {
				return nil, err
			}
			queued = 0
		}
	}
	// flush(): whatever is still queued is processed as the final batch.
	if err := ing.drain(ctx, ingest); err != nil {
		return nil, err
	}

	root, err := ing.finish(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.writeSourceStats(outputDir, stats); err != nil {
		return nil, err
	}
	if root == nil {
		if err := d.persistEmpty(outputDir); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := d.persistManifest(root, outputDir, stats); err != nil {
		return nil, err
	}
	return root, nil
}

// ingestRun accumulates the Node trees produced by successive cache
// drains. A run that only ever drains once (the common case, and every
// run under the default process_threshold) persists that single tree
// directly to outputDir exactly as if no batching had happened; a run
// that drains more than once persists each batch's tree to its own
// staging directory and combines them with combineDirs once ingest
// finishes, the same boundary-reconciliation an explicit multi-directory
// Driver.Merge uses.
type ingestRun struct {
	driver    *Driver
	tiler     *tiler.Tiler
	outputDir string

	pending   *tiler.Node
	chunkDirs []string
}

// drain takes every buffer currently queued in c, builds one Node tree
// from their concatenation, and folds it into the run, staging it to disk
// once a second batch proves this run needs more than one.
func (ing *ingestRun) drain(ctx context.Context, c *cache.PointsCache) error {
	bufs := c.Drain()
	if len(bufs) == 0 {
		return nil
	}
	combined := points.NewBuffer(ing.driver.Schema, 0)
	for _, b := range bufs {
		if err := combined.Concat(b); err != nil {
			return fmt.Errorf("convert: merging ingest batch: %w", err)
		}
	}
	glog.Infof("draining ingest batch of %s points", humanize.Comma(int64(combined.Len())))

	root, err := ing.tiler.Build(ctx, combined)
	if err != nil {
		return fmt.Errorf("convert: building tree: %w", err)
	}
	if root == nil {
		return nil
	}

	if ing.pending == nil && len(ing.chunkDirs) == 0 {
		ing.pending = root
		return nil
	}
	if ing.pending != nil {
		if err := ing.stage(ing.pending); err != nil {
			return err
		}
		ing.pending = nil
	}
	return ing.stage(root)
}

// stage persists root under a private subdirectory of outputDir so it can
// later be folded into the final tree by combineDirs.
func (ing *ingestRun) stage(root *tiler.Node) error {
	dir := filepath.Join(ing.outputDir, fmt.Sprintf(".ingest-batch-%d", len(ing.chunkDirs)))
	if err := ing.driver.persistTree(root, dir); err != nil {
		return fmt.Errorf("convert: staging ingest batch: %w", err)
	}
	ing.chunkDirs = append(ing.chunkDirs, dir)
	return nil
}

// finish resolves the run into a single persisted node tree at outputDir
// (payloads and the sqlite index, but not yet the manifest, which Index
// writes once it also knows the run's full source stats): a single-batch
// run persists directly, a multi-batch run combines its staged
// directories' payloads back into one tree and removes them.
func (ing *ingestRun) finish(ctx context.Context) (*tiler.Node, error) {
	if len(ing.chunkDirs) == 0 {
		if ing.pending == nil {
			return nil, nil
		}
		if err := ing.driver.persistTree(ing.pending, ing.outputDir); err != nil {
			return nil, err
		}
		return ing.pending, nil
	}

	if ing.pending != nil {
		if err := ing.stage(ing.pending); err != nil {
			return nil, err
		}
		ing.pending = nil
	}
	defer func() {
		for _, dir := range ing.chunkDirs {
			os.RemoveAll(dir)
		}
	}()
	root, err := ing.driver.combineDirs(ctx, ing.chunkDirs, ing.outputDir)
	if err != nil {
		return nil, fmt.Errorf("convert: combining %d ingest batches: %w", len(ing.chunkDirs), err)
	}
	return root, nil
}

// persistEmpty writes a manifest with no sources and no node payloads for
// a run whose input contained zero points (§8 S2), rather than treating
// an empty input as fatal.
func (d *Driver) persistEmpty(outputDir string) error {
	ts := manifest.EmptyTileset(d.Config, d.Schema.Names())
	data, err := manifest.Marshal(ts)
	if err != nil {
		return fmt.Errorf("convert: marshaling empty manifest: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("convert: creating output directory: %w", err)
	}
	if err := os.WriteFile(manifestPath(outputDir), data, 0644); err != nil {
		return fmt.Errorf("convert: writing %s: %w", manifestFileName, err)
	}
	return nil
}

func (d *Driver) writeSourceStats(outputDir string, stats []SourceStat) error {
	data, err := json.MarshalIndent(stats, "", "\t")
	if err != nil {
		return fmt.Errorf("convert: marshaling source stats: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("convert: creating output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, sourcesFileName), data, 0644); err != nil {
		return fmt.Errorf("convert: writing %s: %w", sourcesFileName, err)
	}
	return nil
}

// persistTree writes every node's payload under outputDir/data and records
// each one in outputDir/index.sqlite. It does not touch r.json: a run only
// knows its full source stats and diagnostics once every batch has been
// ingested, so the manifest is written once, separately, by persistManifest.
func (d *Driver) persistTree(root *tiler.Node, outputDir string) error {
	dataRoot := nodeDataRoot(outputDir)
	idxPath := filepath.Join(outputDir, "index.sqlite")
	idx, err := persistence.OpenSQLiteIndex(idxPath)
	if err != nil {
		return err
	}
	defer idx.Close()

	var totalWritten int64
	err = root.Walk(func(n *tiler.Node) error {
		out := n.Points
		if _, ok := d.Transform.(transform.Identity); !ok {
			transformed, err := n.Points.Transformed(d.Transform.Apply)
			if err != nil {
				return fmt.Errorf("convert: reprojecting node %s: %w", n.Label(), err)
			}
			out = transformed
		}
		if err := d.Store.WriteNode(dataRoot, n.Path, d.Schema, out); err != nil {
			return fmt.Errorf("convert: writing node %s: %w", n.Label(), err)
		}
		if d.Draco != nil && n.IsLeaf() {
			if err := d.exportDraco(dataRoot, n.Path, out); err != nil {
				return err
			}
		}
		totalWritten += int64(n.Points.Len())
		return idx.Record(n.Path, int64(n.Points.Len()), n.TotalPoints, n.GeometricError)
	})
	if err != nil {
		return err
	}
	glog.Infof("persisted %s points across the node tree", humanize.Comma(totalWritten))
	return nil
}

// persistManifest builds and writes r.json for a completed run: root's
// bounds, the driver's projection label, srcs rendered as manifest
// sources, the run's schema, and the diagnostics counters accumulated on
// d.Progress over the course of the run.
func (d *Driver) persistManifest(root *tiler.Node, outputDir string, srcs []SourceStat) error {
	diag := manifest.Diagnostics{
		DiscardedByDepth:  d.Progress.Counter("discarded_by_depth").Value(),
		SchemaMismatches:  d.Progress.Counter("schema_mismatches").Value(),
		TransformFailures: d.Progress.Counter("transform_failures").Value(),
	}
	ts := manifest.BuildTileset(root, d.ProjectionLabel, manifestSources(srcs), d.Schema.Names(), d.Config, diag)
	data, err := manifest.Marshal(ts)
	if err != nil {
		return fmt.Errorf("convert: marshaling manifest: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("convert: creating output directory: %w", err)
	}
	if err := os.WriteFile(manifestPath(outputDir), data, 0644); err != nil {
		return fmt.Errorf("convert: writing %s: %w", manifestFileName, err)
	}
	return nil
}

// manifestSources renders SourceStat entries (the sources.json shape) as
// the manifest.Source entries r.json's "sources" field carries.
func manifestSources(stats []SourceStat) []manifest.Source {
	out := make([]manifest.Source, len(stats))
	for i, s := range stats {
		out[i] = manifest.Source{Name: s.Path, Points: int64(s.PointCount), Bounds: manifest.BoundsFromAABB(s.Bounds)}
	}
	return out
}

// exportDraco writes path's payload as a PLY file and compresses it to a
// sibling .drc file via draco_encoder, mirroring the teacher's
// ply-write-then-invoke-draco_encoder pipeline in std_consumer.go, then
// deletes the intermediate PLY. The resulting size ratio accumulates into
// the "draco_compression_ratio" float counter as a running average across
// every leaf exported this way, since a single leaf's ratio on its own
// isn't a useful run-level signal.
func (d *Driver) exportDraco(dataRoot, path string, buf *points.Buffer) error {
	name := path
	if name == "" {
		name = "r"
	}
	plyPath := filepath.Join(dataRoot, name+".ply")
	drcPath := filepath.Join(dataRoot, name+".drc")

	if err := (persistence.PLYExporter{}).Export(plyPath, d.Schema, buf); err != nil {
		return fmt.Errorf("convert: exporting ply for %s: %w", path, err)
	}
	defer os.Remove(plyPath)

	if err := d.Draco.Compress(plyPath, drcPath); err != nil {
		return fmt.Errorf("convert: draco-compressing %s: %w", path, err)
	}

	if plyInfo, err := os.Stat(plyPath); err == nil {
		if drcInfo, err := os.Stat(drcPath); err == nil && drcInfo.Size() > 0 {
			ratio := float64(plyInfo.Size()) / float64(drcInfo.Size())
			leaves := d.Progress.Counter("draco_leaves_exported").Add(1)
			avg := d.Progress.FloatCounter("draco_compression_ratio")
			avg.Set(avg.Value() + (ratio-avg.Value())/float64(leaves))
		}
	}
	return nil
}

// Verify opens the sqlite index written by Index and checks that it
// records at least one node and a root node, logging the root's recorded
// total. It does not compare per-node counts with each other or with the
// node payloads on disk.
func (d *Driver) Verify(outputDir string) error {
	idxPath := filepath.Join(outputDir, "index.sqlite")
	idx, err := persistence.OpenSQLiteIndex(idxPath)
	if err != nil {
		return err
	}
	defer idx.Close()

	n, err := idx.Count()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: index at %s has no recorded nodes", ErrVerifyMismatch, idxPath)
	}

	rootRec, ok, err := idx.Lookup("")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: root node not recorded", ErrVerifyMismatch)
	}
	glog.Infof("verify: root reports %s total points across %d nodes", humanize.Comma(rootRec.TotalPointCount), n)
	return nil
}

// Merge combines multiple already-tiled output directories (each
// produced by a prior Index run over a disjoint spatial region) into one
// tree by reading every node payload back and re-tiling the union, the
// same boundary-reconciliation the teacher's TilerMerge performs on
// content.las files (pkg/tiler_merge.go) adapted to this module's
// NodeStore abstraction. The combined run's manifest aggregates each
// input directory's own sources.json, so re-merging never loses a
// source's name/point-count/bounds even though Merge itself never sees
// the original PointSources.
func (d *Driver) Merge(ctx context.Context, inputDirs []string, outputDir string) (*tiler.Node, error) {
	if len(inputDirs) == 0 {
		return nil, ErrNoSources
	}

	root, err := d.combineDirs(ctx, inputDirs, outputDir)
	if err != nil {
		return nil, err
	}
	if err := d.persistManifest(root, outputDir, d.aggregateSourceStats(inputDirs)); err != nil {
		return nil, err
	}
	return root, nil
}

// aggregateSourceStats reads back each input directory's sources.json and
// concatenates them, best-effort: a directory missing or carrying an
// unreadable sources.json (e.g. one staged internally by Index's ingest
// batching, which never writes one) simply contributes nothing rather
// than failing the merge.
func (d *Driver) aggregateSourceStats(inputDirs []string) []SourceStat {
	var out []SourceStat
	for _, dir := range inputDirs {
		data, err := os.ReadFile(filepath.Join(dir, sourcesFileName))
		if err != nil {
			continue
		}
		var stats []SourceStat
		if err := json.Unmarshal(data, &stats); err != nil {
			glog.Warningf("convert: ignoring unreadable %s in %s: %v", sourcesFileName, dir, err)
			continue
		}
		out = append(out, stats...)
	}
	return out
}

// combineDirs reads every node payload back from inputDirs and re-tiles
// their union into a fresh tree persisted (payloads + index, not yet the
// manifest) at outputDir.
func (d *Driver) combineDirs(ctx context.Context, inputDirs []string, outputDir string) (*tiler.Node, error) {
	combined := points.NewBuffer(d.Schema, 0)
	for _, dir := range inputDirs {
		idxPath := filepath.Join(dir, "index.sqlite")
		idx, err := persistence.OpenSQLiteIndex(idxPath)
		if err != nil {
			return nil, err
		}
		count, err := idx.Count()
		idx.Close()
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: %s has no recorded nodes", ErrMergeSchemaMismatch, dir)
		}

		dataRoot := nodeDataRoot(dir)
		err = filepath.WalkDir(dataRoot, func(path string, entry os.DirEntry, err error) error {
			if err != nil || entry.IsDir() || filepath.Ext(path) != d.Store.Ext() {
				return err
			}
			nodePath := entry.Name()[:len(entry.Name())-len(d.Store.Ext())]
			buf, err := d.Store.ReadNode(dataRoot, nodePath, d.Schema)
			if err != nil {
				return fmt.Errorf("convert: reading node %s from %s: %w", nodePath, dir, err)
			}
			return combined.Concat(buf)
		})
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", tiler.ErrCancelled, err)
		}
	}

	t := tiler.New(d.Config, d.Progress)
	root, err := t.Build(ctx, combined)
	if err != nil {
		return nil, fmt.Errorf("convert: rebuilding merged tree: %w", err)
	}
	if err := d.persistTree(root, outputDir); err != nil {
		return nil, err
	}
	return root, nil
}
