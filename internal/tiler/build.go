package tiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/golang/glog"

	"github.com/ecopia-map/octiler/internal/exec"
	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/points"
	"github.com/ecopia-map/octiler/internal/progress"
	"github.com/ecopia-map/octiler/internal/sampler"
)

// Defaults applied when a Config leaves the corresponding field zero, per
// §6's documented defaults. Exported so internal/manifest can report the
// same resolved values a Config without explicit overrides actually built
// with.
const (
	DefaultInternalNodeCapacity = 20000
	DefaultMaxDepth             = 12
	DefaultSpacing              = 1.0
)

// Tiler builds an octree of Nodes from a loaded point buffer. It owns no
// state across runs: a new Build call gets a fresh exec.Graph.
type Tiler struct {
	Config   *Config
	Progress *progress.Reporter
}

// capacity resolves Config.MaxPointsPerNode against its default.
func (t *Tiler) capacity() int {
	if t.Config.MaxPointsPerNode > 0 {
		return int(t.Config.MaxPointsPerNode)
	}
	return DefaultInternalNodeCapacity
}

// maxDepth resolves Config.MaxDepth against its default.
func (t *Tiler) maxDepth() int {
	if t.Config.MaxDepth > 0 {
		return t.Config.MaxDepth
	}
	return DefaultMaxDepth
}

// New returns a Tiler configured by cfg. If rep is nil a private, unused
// Reporter is created so callers never need a nil check.
func New(cfg *Config, rep *progress.Reporter) *Tiler {
	if rep == nil {
		rep = progress.New()
	}
	return &Tiler{Config: cfg, Progress: rep}
}

// Build tiles buf into a Node tree rooted on buf's cubic bounding box. The
// same input and Config produce byte-identical output regardless of
// whether Config.Algorithm is V1 or V2 (§8): every node's sampling and
// octant partitioning goes through the same buildNode logic; the two
// algorithms differ only in how much of the recursion runs concurrently.
func (t *Tiler) Build(ctx context.Context, buf *points.Buffer) (*Node, error) {
	if buf.Len() == 0 {
		return nil, nil
	}
	box := geometry.MakeCubic(buf.Bounds())
	buf = sortByMorton(buf, box)

	counter := t.Progress.Counter("points_placed")
	counter.SetTotal(int64(buf.Len()))

	switch t.Config.Algorithm {
	case AlgorithmV2:
		return t.buildV2(ctx, buf, box, counter)
	default:
		return t.buildNode(ctx, "", nil, box, buf, counter)
	}
}

// buildNode recurses depth-first on the calling goroutine, processing
// children one at a time in ascending octant order. This is AlgorithmV1's
// entire implementation: its determinism follows directly from always
// visiting children in the same fixed order on a single goroutine.
func (t *Tiler) buildNode(ctx context.Context, path string, parent *Node, box geometry.AABB, buf *points.Buffer, counter *progress.Counter) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	n := &Node{Path: path, Box: box, Parent: parent}
	n.GeometricError = n.ComputeGeometricError(t.Config.GeometricErrorScale)
	n.TotalPoints = int64(buf.Len())

	kept, parts, discarded, err := t.partitionNode(path, box, buf)
	if err != nil {
		return nil, err
	}
	n.Points = kept
	counter.Add(int64(kept.Len()))
	if discarded > 0 {
		t.Progress.Counter("discarded_by_depth").Add(discarded)
		glog.V(1).Infof("node %s hit max depth %d, discarding %d points", nodeLabel(path), t.maxDepth(), discarded)
	}
	if parts == nil {
		return n, nil
	}

	for octant := uint8(0); octant < 8; octant++ {
		child, ok := parts[octant]
		if !ok {
			continue
		}
		childNode, err := t.buildNode(ctx, n.ChildPath(octant), n, box.Child(octant), child, counter)
		if err != nil {
			return nil, err
		}
		n.Children[octant] = childNode
	}
	return n, nil
}

// partitionNode applies buildNode's three stop conditions (§4.4) to buf at
// path (whose length is the node's depth, the root's path being the empty
// string): a population at or under capacity is kept whole with no
// children; a node at max depth keeps as much as fits under capacity and
// reports the rest as overflow instead of recursing; otherwise the
// configured sampler splits buf into this node's LOD payload and a
// remainder to partition by octant. A nil children map means the node is
// a leaf. Shared by buildNode and buildV2's root step so both algorithms
// apply identical stop logic.
func (t *Tiler) partitionNode(path string, box geometry.AABB, buf *points.Buffer) (kept *points.Buffer, children map[uint8]*points.Buffer, discarded int64, err error) {
	capacity := t.capacity()
	if buf.Len() <= capacity {
		return buf, nil, 0, nil
	}

	depth := len(path)
	if depth >= t.maxDepth() {
		truncated := buf.Slice(0, capacity)
		return truncated, nil, int64(buf.Len() - capacity), nil
	}

	kept, remainder, err := t.sample(buf, box, path)
	if err != nil {
		return nil, nil, 0, err
	}
	if remainder.Len() == 0 {
		return kept, nil, 0, nil
	}
	return kept, remainder.Partition(box.Octant), 0, nil
}

// buildV2 implements AlgorithmV2: the root is sampled and partitioned in
// a single graph task with the same partitionNode logic buildNode uses,
// then each occupied
// child's entire subtree is then handed to its own exec.Graph task and
// built by the same sequential buildNode, in parallel with its siblings.
// Each task is independent once scheduled — none of them spawns further
// tasks of its own — so there is no nested wait-while-holding-a-slot for
// the pool to deadlock on, regardless of Config.MaxConcurrency.
func (t *Tiler) buildV2(ctx context.Context, buf *points.Buffer, box geometry.AABB, counter *progress.Counter) (*Node, error) {
	limit := t.Config.MaxConcurrency
	if limit <= 0 {
		limit = int64(runtime.GOMAXPROCS(0))
	}
	graph, gctx := exec.New(ctx, limit)

	root := &Node{Path: "", Box: box}
	root.GeometricError = root.ComputeGeometricError(t.Config.GeometricErrorScale)

	rootTask := graph.Spawn(func(ctx context.Context) error {
		root.TotalPoints = int64(buf.Len())
		kept, parts, discarded, err := t.partitionNode("", box, buf)
		if err != nil {
			return err
		}
		root.Points = kept
		counter.Add(int64(kept.Len()))
		if discarded > 0 {
			t.Progress.Counter("discarded_by_depth").Add(discarded)
		}
		if parts == nil {
			return nil
		}

		var mu sync.Mutex
		for octant := uint8(0); octant < 8; octant++ {
			child, ok := parts[octant]
			if !ok {
				continue
			}
			octant, child := octant, child
			graph.SpawnAfter(nil, func(ctx context.Context) error {
				childNode, err := t.buildNode(ctx, root.ChildPath(octant), root, box.Child(octant), child, counter)
				if err != nil {
					return err
				}
				mu.Lock()
				root.Children[octant] = childNode
				mu.Unlock()
				return nil
			})
		}
		return nil
	})

	if err := rootTask.Wait(gctx); err != nil {
		return nil, err
	}
	if err := graph.Wait(); err != nil {
		return nil, err
	}

	glog.V(1).Infof("build v2 complete: %d points placed", counter.Value())
	return root, nil
}

// sample applies the configured Sampler to buf within box, returning the
// points this node retains and the remainder to push down to children.
func (t *Tiler) sample(buf *points.Buffer, box geometry.AABB, path string) (kept, remainder *points.Buffer, err error) {
	s, err := t.samplerFor(path)
	if err != nil {
		return nil, nil, err
	}
	selected := s.Select(buf, box)
	kept, remainder = sampler.Split(buf, selected)
	return kept, remainder, nil
}

func (t *Tiler) samplerFor(path string) (sampler.Sampler, error) {
	switch t.Config.Sampler {
	case "", "GRID":
		res := t.Config.GridResolution
		if res <= 0 {
			res = 128
		}
		return sampler.GridSampler{Resolution: res}, nil
	case "RANDOM":
		return sampler.RandomSampler{
			TargetCount: int(t.Config.RandomSamplerCap),
			Seed:        pathSeed(path),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSampler, t.Config.Sampler)
	}
}

// sortByMorton reorders buf by each point's root-relative Morton key
// (geometry.ComputeKey), the "parallel-compute indices, sort by Morton
// index" step both AlgorithmV1 and AlgorithmV2 start from (§4.4). Run once
// in Build rather than per-algorithm so V1 and V2 partition the same
// canonical ordering and stay byte-identical regardless of the order
// convert.Driver happened to concatenate sources in.
func sortByMorton(buf *points.Buffer, box geometry.AABB) *points.Buffer {
	n := buf.Len()
	order := make([]int, n)
	keys := make([]geometry.Key, n)
	for i := 0; i < n; i++ {
		order[i] = i
		keys[i] = geometry.ComputeKey(box, buf.Position(i))
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] < keys[order[b]]
	})
	return buf.Reorder(order)
}

// nodeLabel renders path for a log line, since the root's path is the
// empty string internally but "r" is what a reader would recognize.
func nodeLabel(path string) string {
	if path == "" {
		return "r"
	}
	return path
}

// pathSeed derives a deterministic seed from a node's path so the same
// node always draws the same random sample regardless of scheduling.
func pathSeed(path string) int64 {
	var h int64 = 1469598103934665603
	for i := 0; i < len(path); i++ {
		h ^= int64(path[i])
		h *= 1099511628211
	}
	return h
}
