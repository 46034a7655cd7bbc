package tiler

import "strings"

// Algorithm selects which of the two octree-construction strategies a run
// uses. Both must produce byte-identical output for the same input and
// Config (§8's determinism property), so Algorithm only changes how work
// is scheduled, never what gets stored where.
type Algorithm string

// RefineMode controls whether a node's children add detail on top of
// their parent's points (Add) or replace the parent's representation
// entirely once refined (Replace), matching the Cesium 3D Tiles refine
// semantics. It is carried on Config only; neither the tiler nor the
// manifest writer reads or records it.
type RefineMode string

const (
	// AlgorithmV1 builds the whole tree depth-first on the calling
	// goroutine, visiting children in ascending octant order. Like V2 it
	// starts from the single Morton sort Build performs, and at every
	// level it splits points by AABB.Octant.
	AlgorithmV1 Algorithm = "V1"

	// AlgorithmV2 starts from the same Morton-sorted buffer, partitions the
	// root in one exec.Graph task, then builds each occupied root child's
	// subtree sequentially in its own task, in parallel with its siblings.
	AlgorithmV2 Algorithm = "V2"
)

const (
	RefineModeAdd     RefineMode = "ADD"
	RefineModeReplace RefineMode = "REPLACE"
)

func (r RefineMode) String() string {
	switch r {
	case RefineModeAdd:
		return "ADD"
	case RefineModeReplace:
		return "REPLACE"
	}
	return ""
}

// ParseRefineMode maps a config/flag string onto a RefineMode, returning
// the empty RefineMode for anything unrecognized.
func ParseRefineMode(value string) RefineMode {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ADD":
		return RefineModeAdd
	case "REPLACE":
		return RefineModeReplace
	}
	return ""
}

// ParseAlgorithm maps a config/flag string onto an Algorithm, returning
// AlgorithmV1 for anything unrecognized so a typo degrades to the
// reference-safe default rather than failing a long-running job.
func ParseAlgorithm(value string) Algorithm {
	if strings.ToUpper(strings.TrimSpace(value)) == "V2" {
		return AlgorithmV2
	}
	return AlgorithmV1
}

// Config carries every knob governing one tiling run. It is built from a
// TOML file merged with CLI flag overrides (see internal/config) and
// copied per-run so a merge/verify pass can't mutate the options an index
// pass already captured.
type Config struct {
	// RandomSamplerCap is sampling_params' random-cap value: the per-node
	// point cap RandomSampler keeps, retaining min(N, cap) points chosen
	// uniformly at random. It has no effect under the GRID sampler.
	RandomSamplerCap int32

	// MaxPointsPerNode is internal_node_capacity: a node whose candidate
	// point count is at or under this retains everything as its own LOD
	// payload with no children (buildNode's first stop condition).
	// Zero or negative resolves to DefaultInternalNodeCapacity.
	MaxPointsPerNode int32

	// MaxDepth caps how many octree levels a run may descend (depth is
	// len(path), the root being depth 0) before a node is forced to become a leaf regardless of
	// its remaining population, discarding whatever doesn't fit under
	// MaxPointsPerNode into the "discarded_by_depth" progress counter.
	// This is what keeps a run on degenerate input (e.g. a pile of
	// coincident points, which never shrinks the octant a grid sampler
	// routes its remainder into) from recursing forever. Zero or
	// negative resolves to DefaultMaxDepth.
	MaxDepth int

	// Spacing is the minimum point separation at the root a run was asked
	// for (§6's spacing knob). It does not itself drive GridSampler's
	// per-node resolution today — that still comes from GridResolution —
	// but it is the value the manifest reports for the run, and the knob
	// a future depth-scaled sampler (spacing_at_node = Spacing/2^depth)
	// would read. Zero or negative resolves to DefaultSpacing.
	Spacing float64

	// GridResolution is the per-axis cell count GridSampler overlays on a
	// node's box; ignored when Sampler is "RANDOM". Zero or negative
	// resolves to 128.
	GridResolution int

	// Sampler chooses which internal/sampler.Sampler a node uses to pick
	// its own retained points: "GRID" or "RANDOM".
	Sampler string

	Algorithm  Algorithm
	RefineMode RefineMode

	// GeometricErrorScale multiplies each node's computed geometric error
	// before it's recorded in the run's sqlite node index, letting a run tune Cesium's
	// screen-space error thresholds without re-tiling.
	GeometricErrorScale float64

	// MaxConcurrency bounds the internal/exec.Graph pool size for this
	// run. Zero means the tiler picks GOMAXPROCS.
	MaxConcurrency int64

	// EightBitColors, ZOffset and EnableGeoidZCorrection mirror the
	// source-conversion knobs the teacher's options carried, now applied
	// by internal/sources and internal/transform instead of inline in the
	// tiler.
	EightBitColors         bool
	ZOffset                float64
	EnableGeoidZCorrection bool

	Srid int

	// ProcessThreshold is the queued-point count that triggers draining
	// the ingest cache.PointsCache and building a sub-tree, rather than
	// holding every source's points resident at once. Zero or negative
	// resolves to defaultProcessThreshold.
	ProcessThreshold int64

	// MaxMemoryUsageMiB bounds the ingest cache's estimated footprint;
	// exceeding it drains the cache regardless of ProcessThreshold. Zero
	// or negative means unbounded.
	MaxMemoryUsageMiB int64
}

// Copy returns a deep-enough copy of c for a derived run (e.g. a verify
// pass reusing an index run's Config) to mutate safely.
func (c *Config) Copy() *Config {
	cp := *c
	return &cp
}
