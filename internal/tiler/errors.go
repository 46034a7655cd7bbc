package tiler

import "errors"

// Sentinel errors a caller can match with errors.Is, following the
// wrapped-sentinel convention used throughout this module instead of
// typed exceptions.
var (
	// ErrUnknownSampler is returned when Config.Sampler doesn't name a
	// registered sampler.
	ErrUnknownSampler = errors.New("tiler: unrecognized sampler")

	// ErrCancelled is returned when a build's context is canceled before
	// the tree finishes.
	ErrCancelled = errors.New("tiler: build canceled")
)
