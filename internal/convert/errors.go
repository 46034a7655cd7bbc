// Package convert orchestrates a full run: loading one or more sources,
// handing their points to a tiler.Tiler, and persisting the resulting
// tree with a NodeStore and a manifest writer. It is the glue the
// teacher's pkg.TilerIndex/TilerMerge/TilerVerify commands play, adapted
// to this module's Tiler/NodeStore/manifest split.
package convert

import "errors"

var (
	// ErrNoSources is returned when a run is asked to index zero input
	// files.
	ErrNoSources = errors.New("convert: no input sources given")

	// ErrOutputExists is returned when Index is asked to write into an
	// output directory that already holds a tileset, to avoid silently
	// mixing two runs' node files together.
	ErrOutputExists = errors.New("convert: output directory already contains a tileset")

	// ErrVerifyMismatch is returned when Verify finds the sqlite index
	// empty or without a root node record.
	ErrVerifyMismatch = errors.New("convert: verification found a point count mismatch")

	// ErrMergeSchemaMismatch is returned when Merge (or Index's combine of
	// several ingest batches) finds an input directory whose sqlite index
	// records no nodes. Payloads written with a different point schema are
	// not detected by this check.
	ErrMergeSchemaMismatch = errors.New("convert: cannot merge tiles with different schemas")
)
