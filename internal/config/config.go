// Package config loads a run's settings from a TOML file and merges in
// CLI flag overrides, mirroring the teacher's tools.TilerFlags shape but
// backed by a file instead of (or in addition to) flags, using
// github.com/BurntSushi/toml the way the rest of the retrieval pack
// reaches for it over encoding/json for config files.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/ecopia-map/octiler/internal/tiler"
)

// File is the on-disk TOML shape. Every field is optional: CLI flags can
// fill in anything a config file omits, and an absent config file simply
// means every setting comes from flags.
type File struct {
	Input  string `toml:"input"`
	Output string `toml:"output"`
	Srid   int    `toml:"srid"`

	EightBitColors         bool    `toml:"eight_bit_colors"`
	ZOffset                float64 `toml:"z_offset"`
	EnableGeoidZCorrection bool    `toml:"enable_geoid_z_correction"`

	RandomSamplerCap    int32   `toml:"random_sampler_cap"`
	MaxPointsPerNode    int32   `toml:"max_points_per_node"`
	MaxDepth            int     `toml:"max_depth"`
	Spacing             float64 `toml:"spacing"`
	GridResolution      int     `toml:"grid_resolution"`
	Sampler             string  `toml:"sampler"`
	Algorithm           string  `toml:"algorithm"`
	RefineMode          string  `toml:"refine_mode"`
	GeometricErrorScale float64 `toml:"geometric_error_scale"`
	MaxConcurrency      int64   `toml:"max_concurrency"`
	ProcessThreshold    int64   `toml:"process_threshold"`
	MaxMemoryUsageMiB   int64   `toml:"max_memory_usage_mib"`

	Draco            bool   `toml:"draco"`
	DracoEncoderPath string `toml:"draco_encoder_path"`
	OutputFormat     string `toml:"output_format"`
}

// Load parses path as TOML into a File.
func Load(path string) (File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return File{}, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return f, nil
}

// Overrides carries the subset of settings a CLI flag can override; a nil
// field/pointer means "use the config file's value (or the default)".
type Overrides struct {
	Input               *string
	Output              *string
	Srid                *int
	Algorithm           *string
	RefineMode          *string
	Sampler             *string
	RandomSamplerCap    *int32
	MaxPointsPerNode    *int32
	MaxDepth            *int
	Spacing             *float64
	GridResolution      *int
	GeometricErrorScale *float64
	MaxConcurrency      *int64
	ProcessThreshold    *int64
	MaxMemoryUsageMiB   *int64
	Draco               *bool
}

// Merge applies o onto f, returning a new File. Fields left nil in o keep
// f's value.
func (f File) Merge(o Overrides) File {
	out := f
	if o.Input != nil {
		out.Input = *o.Input
	}
	if o.Output != nil {
		out.Output = *o.Output
	}
	if o.Srid != nil {
		out.Srid = *o.Srid
	}
	if o.Algorithm != nil {
		out.Algorithm = *o.Algorithm
	}
	if o.RefineMode != nil {
		out.RefineMode = *o.RefineMode
	}
	if o.Sampler != nil {
		out.Sampler = *o.Sampler
	}
	if o.RandomSamplerCap != nil {
		out.RandomSamplerCap = *o.RandomSamplerCap
	}
	if o.MaxPointsPerNode != nil {
		out.MaxPointsPerNode = *o.MaxPointsPerNode
	}
	if o.MaxDepth != nil {
		out.MaxDepth = *o.MaxDepth
	}
	if o.Spacing != nil {
		out.Spacing = *o.Spacing
	}
	if o.GridResolution != nil {
		out.GridResolution = *o.GridResolution
	}
	if o.GeometricErrorScale != nil {
		out.GeometricErrorScale = *o.GeometricErrorScale
	}
	if o.MaxConcurrency != nil {
		out.MaxConcurrency = *o.MaxConcurrency
	}
	if o.ProcessThreshold != nil {
		out.ProcessThreshold = *o.ProcessThreshold
	}
	if o.MaxMemoryUsageMiB != nil {
		out.MaxMemoryUsageMiB = *o.MaxMemoryUsageMiB
	}
	if o.Draco != nil {
		out.Draco = *o.Draco
	}
	return out
}

// TilerConfig projects the relevant fields of f into a tiler.Config.
func (f File) TilerConfig() *tiler.Config {
	scale := f.GeometricErrorScale
	if scale == 0 {
		scale = 1
	}
	return &tiler.Config{
		RandomSamplerCap:       f.RandomSamplerCap,
		MaxPointsPerNode:       f.MaxPointsPerNode,
		MaxDepth:               f.MaxDepth,
		Spacing:                f.Spacing,
		GridResolution:         f.GridResolution,
		Sampler:                f.Sampler,
		Algorithm:              tiler.ParseAlgorithm(f.Algorithm),
		RefineMode:             tiler.ParseRefineMode(f.RefineMode),
		GeometricErrorScale:    scale,
		MaxConcurrency:         f.MaxConcurrency,
		EightBitColors:         f.EightBitColors,
		ZOffset:                f.ZOffset,
		EnableGeoidZCorrection: f.EnableGeoidZCorrection,
		Srid:                   f.Srid,
		ProcessThreshold:       f.ProcessThreshold,
		MaxMemoryUsageMiB:      f.MaxMemoryUsageMiB,
	}
}
