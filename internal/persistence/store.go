// Package persistence writes a tiled octree out to disk: one payload per
// node plus a sqlite index of per-node metadata. Every writer here
// follows the teacher's write-then-rename pattern (see internal/io's
// ioutil.WriteFile call sites, generalized to the atomic variant used
// across the retrieval pack, e.g. viamrobotics-rdk's packages/utils.go)
// so a reader never observes a half-written file.
package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ecopia-map/octiler/internal/points"
)

// NodeStore persists and loads the point payload for a single octree
// node, addressed by its path (root = "r").
type NodeStore interface {
	// WriteNode persists buf as the payload for the node at path under
	// root, atomically: no partial file is ever visible to a concurrent
	// reader.
	WriteNode(root string, path string, schema points.Schema, buf *points.Buffer) error

	// ReadNode loads the payload previously written for path under root.
	ReadNode(root string, path string, schema points.Schema) (*points.Buffer, error)

	// Ext returns the file extension this store uses, which is how a
	// merge recognizes payload files when reading a directory back.
	Ext() string
}

// writeFileAtomic writes data to path by first writing to a sibling
// temporary file in the same directory, then renaming it into place.
// Same-directory rename is required for atomicity: cross-filesystem
// renames are not guaranteed atomic by the OS.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("persistence: creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("persistence: creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: writing temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: closing temp file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: chmod temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persistence: renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// nodeFilePath builds the on-disk path for a node's payload file, keeping
// every node of a tile in its own path-named file the way the teacher's
// tileset layout names a node's content.pnts by its node path.
func nodeFilePath(root, path, ext string) string {
	name := path
	if name == "" {
		name = "r"
	}
	return filepath.Join(root, name+ext)
}
